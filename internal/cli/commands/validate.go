package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metagraph-dev/metagraph/internal/cli/ui"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

type validationReport struct {
	Valid       bool                    `json:"valid"`
	Fingerprint string                  `json:"fingerprint"`
	Aspects     int                     `json:"aspects"`
	Entities    int                     `json:"entities"`
	Dangling    []registry.Relationship `json:"danglingTargets"`
	Cycles      [][]string              `json:"cycles"`
}

func newValidateCommand(a *app) *cobra.Command {
	var strict, noCycles bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the schema set and report problems",
		Long: `Load the schema set and report problems.

Loading fails on any registration error: duplicate names, unknown aspects
in the entity registry, a missing key aspect or an unresolvable field type.

Relationship targets naming no defined entity type are reported as warnings;
--strict turns them into errors. Relationship cycles are listed for
information; --no-cycles turns them into errors.`,
		Example: `  metagraph validate
  metagraph validate --strict --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				if a.format != "json" {
					ui.Message{
						Level:   ui.LevelError,
						Context: "INVALID SCHEMA",
						Problem: err.Error(),
						Hints:   []string{"Check the file named above, then run: metagraph validate"},
						NoColor: a.noColor,
					}.Write(cmd.ErrOrStderr())
					return reportedError{err}
				}
				return err
			}

			dangling, err := snap.DanglingTargets()
			if err != nil {
				return err
			}
			cycles, err := snap.DetectCycles()
			if err != nil {
				return err
			}

			report := validationReport{
				Valid:       !(strict && len(dangling) > 0) && !(noCycles && len(cycles) > 0),
				Fingerprint: snap.Fingerprint(),
				Aspects:     snap.NumAspects(),
				Entities:    snap.NumEntities(),
				Dangling:    dangling,
				Cycles:      cycles,
			}

			err = a.render(cmd.OutOrStdout(), report, func(w io.Writer) {
				writeReport(w, report, strict, noCycles, a.noColor)
			})
			if err != nil {
				return err
			}
			if !report.Valid {
				return reportedError{fmt.Errorf("schema validation failed")}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on relationship targets that name no entity type")
	cmd.Flags().BoolVar(&noCycles, "no-cycles", false, "Fail on relationship cycles")
	return cmd
}

func writeReport(w io.Writer, r validationReport, strict, noCycles, noColor bool) {
	if len(r.Dangling) > 0 {
		level := ui.LevelWarning
		if strict {
			level = ui.LevelError
		}
		m := ui.Message{
			Level:   level,
			Problem: fmt.Sprintf("%d relationship target(s) name no entity type", len(r.Dangling)),
			NoColor: noColor,
		}
		for _, rel := range r.Dangling {
			m.Details = append(m.Details, fmt.Sprintf("%s: %s -> %s (%s)", rel.Name, rel.Source, rel.Target, rel.FieldPath))
		}
		m.Write(w)
	}

	if len(r.Cycles) > 0 {
		level := ui.LevelInfo
		if noCycles {
			level = ui.LevelError
		}
		m := ui.Message{
			Level:   level,
			Problem: fmt.Sprintf("%d relationship cycle(s)", len(r.Cycles)),
			NoColor: noColor,
		}
		for _, c := range r.Cycles {
			m.Details = append(m.Details, strings.Join(c, " -> "))
		}
		m.Write(w)
	}

	if r.Valid {
		ui.WriteSuccess(w, fmt.Sprintf("%d aspects, %d entities (fingerprint %s)", r.Aspects, r.Entities, short(r.Fingerprint)), noColor)
	}
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
