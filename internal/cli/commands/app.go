package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/internal/cli/config"
	"github.com/metagraph-dev/metagraph/internal/cli/ui"
	"github.com/metagraph-dev/metagraph/internal/loader"
	"github.com/metagraph-dev/metagraph/internal/logging"
	"github.com/metagraph-dev/metagraph/internal/store"
	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// annotationLongRunning marks commands that log at the configured level.
// Short query commands only log warnings unless --verbose is set.
const annotationLongRunning = "metagraph/long-running"

// app carries the global flags and the state every command shares
type app struct {
	configFile   string
	format       string
	verbose      bool
	noColor      bool
	dirs         []string
	registryFile string
	fromStore    bool

	cfg    *config.Config
	logger *zap.Logger
}

// reportedError has already been shown to the user in a richer form
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func (a *app) setup(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}
	if a.format != "table" && a.format != "json" {
		return fmt.Errorf("unsupported format: %s (supported: table, json)", a.format)
	}

	cfg, err := config.LoadFile(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("schemas") {
		cfg.Schema.Dirs = a.dirs
	}
	if flags.Changed("registry-file") {
		cfg.Schema.RegistryFile = a.registryFile
	}
	switch {
	case a.verbose:
		cfg.Log.Level = "debug"
	case cmd.Annotations[annotationLongRunning] == "":
		if lvl, _ := logging.ParseLevel(cfg.Log.Level); lvl < zap.WarnLevel {
			cfg.Log.Level = "warn"
		}
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// loadSnapshot reads the schema set from source files, or from the schema
// store with --from-store
func (a *app) loadSnapshot(ctx context.Context) (*registry.Snapshot, error) {
	if a.fromStore {
		return a.loadFromStore(ctx)
	}
	return loader.Load(ctx, a.loaderOptions())
}

func (a *app) loaderOptions() loader.Options {
	manifest := a.cfg.Schema.RegistryFile
	if manifest != "" {
		if _, err := os.Stat(manifest); errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("entity registry not found, loading aspects only", zap.String("path", manifest))
			manifest = ""
		}
	}
	return loader.Options{
		Dirs:         a.cfg.Schema.Dirs,
		RegistryFile: manifest,
		Logger:       a.logger.Named("loader"),
	}
}

func (a *app) loadFromStore(ctx context.Context) (*registry.Snapshot, error) {
	if a.cfg.Database.URL == "" {
		return nil, fmt.Errorf("--from-store needs database.url (or METAGRAPH_DATABASE_URL)")
	}
	db, dialect, err := store.Open(a.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.New(db, dialect, a.logger.Named("store")).Load(ctx)
}

// render writes v as indented JSON with --format json, otherwise calls table
func (a *app) render(w io.Writer, v any, table func(w io.Writer)) error {
	if a.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	table(w)
	return nil
}

// notFound prints a suggestion-rich message for lookups that miss and
// returns an error that Execute will not print again
func (a *app) notFound(cmd *cobra.Command, err error, known []string) error {
	var nf *schema.NotFoundError
	if !errors.As(err, &nf) || a.format == "json" {
		return err
	}
	ui.NotFound(nf.Kind, nf.Name, known, a.noColor).Write(cmd.ErrOrStderr())
	return reportedError{err}
}

func aspectNames(snap *registry.Snapshot) []string {
	var names []string
	for asp := range snap.ListAspects() {
		names = append(names, asp.Name)
	}
	return names
}

func entityNames(snap *registry.Snapshot) []string {
	var names []string
	for e := range snap.ListEntities() {
		names = append(names, e.Name)
	}
	return names
}
