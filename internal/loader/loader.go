// Package loader reads schema sources and the entity registry from disk and
// builds a registry snapshot from them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// SourceExtensions are the file extensions read as schema sources
var SourceExtensions = []string{".avsc", ".json"}

// Options configures Load
type Options struct {
	Dirs         []string
	RegistryFile string
	Logger       *zap.Logger
	Concurrency  int // parallel file decodes; 0 means GOMAXPROCS
}

// Source is one decoded schema file
type Source struct {
	Path string
	Doc  *avro.Document
}

// Load discovers and decodes every schema source under opts.Dirs, reads the
// entity registry, and builds a snapshot. Any error is fatal: a partially
// loaded schema set is never returned.
func Load(ctx context.Context, opts Options) (*registry.Snapshot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	paths, err := Discover(opts.Dirs, opts.RegistryFile)
	if err != nil {
		return nil, err
	}
	sources, err := ReadSources(ctx, paths, opts.Concurrency)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{}
	if opts.RegistryFile != "" {
		if manifest, err = ReadManifest(opts.RegistryFile); err != nil {
			return nil, err
		}
	}

	b := registry.NewBuilder()
	if err := Apply(b, sources, manifest); err != nil {
		return nil, err
	}
	snap := b.Build()

	logger.Info("schema loaded",
		zap.Int("files", len(sources)),
		zap.Int("aspects", snap.NumAspects()),
		zap.Int("entities", snap.NumEntities()),
		zap.String("fingerprint", snap.Fingerprint()[:12]),
	)
	return snap, nil
}

// Discover lists schema source files under dirs in sorted order, skipping
// hidden directories and the entity registry file itself.
func Discover(dirs []string, registryFile string) ([]string, error) {
	skip := ""
	if registryFile != "" {
		skip, _ = filepath.Abs(registryFile)
	}

	var paths []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("schema directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("schema directory %s is not a directory", dir)
		}

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsSource(path) {
				return nil
			}
			if abs, _ := filepath.Abs(path); abs == skip {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// IsSource reports whether path has a schema source extension
func IsSource(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SourceExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadSources decodes files concurrently. Results keep the order of paths.
func ReadSources(ctx context.Context, paths []string, concurrency int) ([]Source, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	sources := make([]Source, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			doc, err := avro.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			sources[i] = Source{Path: path, Doc: doc}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

type pending[T any] struct {
	path  string
	value T
}

// Apply registers sources and manifest entities into b: shared types first,
// then aspects, then entities in manifest order. Types and aspects that
// reference definitions from later files are retried until no progress is
// made, so file order only matters for duplicate names.
func Apply(b *registry.Builder, sources []Source, m *Manifest) error {
	var types []pending[schema.Named]
	var aspects []pending[*schema.AspectSchema]
	for _, src := range sources {
		for _, t := range src.Doc.Types {
			types = append(types, pending[schema.Named]{src.Path, t})
		}
		for _, a := range src.Doc.Aspects {
			aspects = append(aspects, pending[*schema.AspectSchema]{src.Path, a})
		}
	}

	if err := settle(types, b.RegisterType); err != nil {
		return err
	}
	if err := settle(aspects, b.RegisterAspect); err != nil {
		return err
	}

	if m == nil {
		return nil
	}
	for i := range m.Entities {
		if err := b.DefineEntity(&m.Entities[i]); err != nil {
			return fmt.Errorf("entity registry: %w", err)
		}
	}
	return nil
}

// settle registers items, retrying those that fail on unresolved references
func settle[T any](items []pending[T], register func(T) error) error {
	for len(items) > 0 {
		var retry []pending[T]
		var lastErr error
		for _, item := range items {
			err := register(item.value)
			if err == nil {
				continue
			}
			if !retryable(err) {
				return fmt.Errorf("%s: %w", item.path, err)
			}
			retry = append(retry, item)
			if lastErr == nil {
				lastErr = fmt.Errorf("%s: %w", item.path, err)
			}
		}
		if len(retry) == len(items) {
			return lastErr
		}
		items = retry
	}
	return nil
}

func retryable(err error) bool {
	var invalid *schema.InvalidFieldError
	return errors.As(err, &invalid) && strings.Contains(invalid.Reason, "unresolved")
}
