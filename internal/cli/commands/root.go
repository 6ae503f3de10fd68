package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/metagraph-dev/metagraph/internal/api"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "metagraph",
		Short: "Metadata entity registry: aspects, entities and relationships",
		Long: color.CyanString(`metagraph - metadata entity registry

metagraph loads aspect schemas and entity definitions, derives the
relationship graph between entity types, and serves it over HTTP and MCP.

Schemas are read from the directories in metagraph.yml (schema.dirs) and
the entity registry file (schema.registry_file).`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "init", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
				if a.noColor {
					color.NoColor = true
				}
				return nil
			}
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default ./metagraph.yml)")
	flags.StringVar(&a.format, "format", "table", "Output format: table or json")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output and debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.StringSliceVar(&a.dirs, "schemas", nil, "Schema source directories (overrides schema.dirs)")
	flags.StringVar(&a.registryFile, "registry-file", "", "Entity registry file (overrides schema.registry_file)")
	flags.BoolVar(&a.fromStore, "from-store", false, "Read the schema set from database.url instead of source files")

	rootCmd.AddCommand(
		NewVersionCommand(),
		newAspectsCommand(a),
		newAspectCommand(a),
		newEntitiesCommand(a),
		newEntityCommand(a),
		newRelationshipsCommand(a),
		newSearchableCommand(a),
		newGraphCommand(a),
		newValidateCommand(a),
		newServeCommand(a),
		newMCPCommand(a),
		newExportCommand(a),
		newTokenCommand(a),
		newInitCommand(),
		NewCompletionCommand(),
	)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			titleColor := color.New(color.FgCyan, color.Bold)
			w := cmd.OutOrStdout()

			titleColor.Fprint(w, "metagraph version: ")
			fmt.Fprintln(w, Version)
			titleColor.Fprint(w, "Git commit: ")
			fmt.Fprintln(w, GitCommit)
			titleColor.Fprint(w, "Build date: ")
			fmt.Fprintln(w, BuildDate)
			titleColor.Fprint(w, "Go version: ")
			fmt.Fprintln(w, runtime.Version())
		},
	}
}

// Execute runs the root command
func Execute() error {
	api.Version = Version

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}
