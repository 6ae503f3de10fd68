package watch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// LoadFunc reads the schema sources into a new snapshot
type LoadFunc func(ctx context.Context) (*registry.Snapshot, error)

// Reloader swaps freshly loaded snapshots into a registry. A failed load
// leaves the current snapshot in place.
type Reloader struct {
	reg    *registry.Registry
	load   LoadFunc
	logger *zap.Logger

	// serializes reloads so an older load never replaces a newer one
	mu sync.Mutex
}

// NewReloader creates a reloader for reg
func NewReloader(reg *registry.Registry, load LoadFunc, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{reg: reg, load: load, logger: logger}
}

// Reload loads the sources and publishes the result when its fingerprint
// differs from the current snapshot. It reports whether a swap happened.
func (r *Reloader) Reload(ctx context.Context, changed []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.reg.Snapshot()
	next, err := r.load(ctx)
	if err != nil {
		r.logger.Error("schema reload failed, keeping current schema",
			zap.Strings("changed", changed),
			zap.Uint64("version", current.Version()),
			zap.Error(err),
		)
		return false, fmt.Errorf("reload failed: %w", err)
	}

	if next.Fingerprint() == current.Fingerprint() {
		r.logger.Debug("schema unchanged", zap.Strings("changed", changed))
		return false, nil
	}

	r.reg.Replace(next)
	r.logger.Info("schema reloaded",
		zap.Strings("changed", changed),
		zap.Uint64("version", r.reg.Snapshot().Version()),
		zap.Int("aspects", next.NumAspects()),
		zap.Int("entities", next.NumEntities()),
	)
	return true, nil
}

// Run watches the configured paths and reloads reg on every settled batch
// of changes until ctx is done
func Run(ctx context.Context, opts Options, r *Reloader) error {
	fw, err := NewFileWatcher(opts, func(files []string) {
		// Errors are logged by Reload; the watcher keeps going
		r.Reload(ctx, files)
	})
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		fw.Stop()
		return err
	}

	r.logger.Info("watching schema sources",
		zap.Strings("dirs", opts.Dirs),
		zap.Strings("files", opts.Files),
		zap.Duration("debounce", fw.opts.Debounce),
	)
	<-ctx.Done()
	return fw.Stop()
}
