package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metagraph-dev/metagraph/internal/cli/ui"
	"github.com/metagraph-dev/metagraph/internal/store"
)

func newExportCommand(a *app) *cobra.Command {
	var to string
	var force bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save the schema set to the schema store",
		Long: `Save the schema set to the schema store.

The target is database.url unless --to is given: sqlite://path, file:path
or postgres://... The stored set replaces whatever was saved before. When
the stored fingerprint already matches, nothing is written unless --force.`,
		Example: `  metagraph export --to sqlite://metagraph.db
  metagraph serve --from-store --config prod.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := a.cfg.Database.URL
			if to != "" {
				url = to
			}
			if url == "" {
				return fmt.Errorf("no store configured: pass --to or set database.url")
			}
			if a.fromStore {
				return fmt.Errorf("--from-store cannot be combined with export")
			}

			ctx := cmd.Context()
			snap, err := a.loadSnapshot(ctx)
			if err != nil {
				return err
			}

			db, dialect, err := store.Open(url)
			if err != nil {
				return err
			}
			defer db.Close()

			s := store.New(db, dialect, a.logger.Named("store"))
			if err := s.Initialize(ctx); err != nil {
				return err
			}

			stored, err := s.Fingerprint(ctx)
			if err != nil {
				return err
			}
			if stored == snap.Fingerprint() && !force {
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("store is up to date (fingerprint %s)", short(stored)), a.noColor)
				return nil
			}

			if err := s.Save(ctx, snap); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("saved %d aspects and %d entities to %s", snap.NumAspects(), snap.NumEntities(), dialect.Name), a.noColor)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Store URL (overrides database.url)")
	cmd.Flags().BoolVar(&force, "force", false, "Write even when the stored fingerprint matches")
	return cmd
}
