// Package watch reloads the registry when schema sources change on disk.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period used when Options.Debounce is zero
const DefaultDebounce = 200 * time.Millisecond

// Options configures a FileWatcher
type Options struct {
	// Dirs are watched recursively; directories created later are picked up
	Dirs []string

	// Files are watched individually, e.g. the entity registry manifest
	Files []string

	// Match reports whether a changed path is interesting. Nil matches all.
	Match func(path string) bool

	Debounce time.Duration
	Logger   *zap.Logger
}

// FileWatcher monitors schema directories and reports batches of changed files
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	files     map[string]bool
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewFileWatcher creates a watcher that calls onChange with each settled
// batch of changed paths
func NewFileWatcher(opts Options, onChange func([]string)) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(opts.Debounce),
		opts:      opts,
		files:     make(map[string]bool),
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
	fw.debouncer.SetCallback(onChange)
	return fw, nil
}

// Start registers the watched paths and begins delivering events
func (fw *FileWatcher) Start() error {
	for _, dir := range fw.opts.Dirs {
		if err := fw.addTree(dir); err != nil {
			return err
		}
	}

	// Watch the parent so editors that replace the file by rename are seen
	for _, file := range fw.opts.Files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", file, err)
		}
		fw.files[abs] = true
		if err := fw.watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", file, err)
		}
	}

	fw.wg.Add(1)
	go fw.watch()
	return nil
}

// Stop stops the file watcher. Pending changes are dropped.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopChan)
		fw.wg.Wait()
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if isHidden(event.Name) || event.Op == fsnotify.Chmod {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addTree(event.Name); err != nil {
				fw.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			// Files written before the directory was watched would be missed
			fw.debouncer.Add(event.Name)
			return
		}
	}

	if !fw.matches(event.Name) {
		return
	}
	fw.logger.Debug("file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	fw.debouncer.Add(event.Name)
}

func (fw *FileWatcher) matches(path string) bool {
	if abs, err := filepath.Abs(path); err == nil && fw.files[abs] {
		return true
	}
	if !fw.inDirs(path) {
		return false
	}
	return fw.opts.Match == nil || fw.opts.Match(path)
}

// inDirs filters out siblings of watched files that share a parent directory
func (fw *FileWatcher) inDirs(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range fw.opts.Dirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		fw.logger.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
