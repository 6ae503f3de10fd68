package commands

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metagraph-dev/metagraph/internal/cli/config"
	"github.com/metagraph-dev/metagraph/internal/cli/ui"
	"github.com/metagraph-dev/metagraph/internal/loader"
	"github.com/metagraph-dev/metagraph/internal/store"
	"github.com/metagraph-dev/metagraph/pkg/schema"
)

type initAnswers struct {
	SchemaDir    string
	RegistryFile string
	Addr         string
	Store        string
	Watch        bool
}

// projectFile is the subset of metagraph.yml that init writes
type projectFile struct {
	Schema struct {
		Dirs         []string `yaml:"dirs"`
		RegistryFile string   `yaml:"registry_file"`
		Watch        bool     `yaml:"watch"`
	} `yaml:"schema"`
	Database struct {
		URL string `yaml:"url,omitempty"`
	} `yaml:"database,omitempty"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
}

func newInitCommand() *cobra.Command {
	var dir string
	var yes, force, noColor bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create metagraph.yml and an empty schema layout",
		Long: `Create metagraph.yml and an empty schema layout.

Asks for the schema directory, entity registry file, listen address and an
optional schema store. --yes accepts the defaults without prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noColor, _ = cmd.Flags().GetBool("no-color")

			path := filepath.Join(dir, config.FileName+".yml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := initAnswers{
				SchemaDir:    "schemas",
				RegistryFile: "entity-registry.yml",
				Addr:         "localhost:8080",
			}
			if !yes {
				if err := askInit(&answers); err != nil {
					return err
				}
			}

			if err := writeProject(dir, answers); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), "wrote "+path, noColor)
			fmt.Fprintf(cmd.OutOrStdout(), "  add schema sources under %s, then run: metagraph validate\n",
				filepath.Join(dir, answers.SchemaDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Project directory")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing metagraph.yml")
	return cmd
}

func askInit(answers *initAnswers) error {
	questions := []*survey.Question{
		{
			Name:     "schemaDir",
			Prompt:   &survey.Input{Message: "Schema directory:", Default: answers.SchemaDir},
			Validate: survey.Required,
		},
		{
			Name:     "registryFile",
			Prompt:   &survey.Input{Message: "Entity registry file:", Default: answers.RegistryFile, Help: "YAML, TOML or JSON, chosen by extension"},
			Validate: survey.Required,
		},
		{
			Name:     "addr",
			Prompt:   &survey.Input{Message: "Listen address for 'metagraph serve':", Default: answers.Addr},
			Validate: survey.Required,
		},
		{
			Name: "store",
			Prompt: &survey.Input{
				Message: "Schema store URL (optional):",
				Help:    "sqlite://metagraph.db or postgres://...; leave empty to skip 'metagraph export'",
			},
			Validate: func(v any) error {
				if s, _ := v.(string); s != "" {
					_, _, err := store.ParseURL(s)
					return err
				}
				return nil
			},
		},
		{
			Name:   "watch",
			Prompt: &survey.Confirm{Message: "Reload schemas on file changes while serving?", Default: true},
		},
	}
	return survey.Ask(questions, answers)
}

func writeProject(dir string, answers initAnswers) error {
	secret, err := randomSecret()
	if err != nil {
		return err
	}

	var pf projectFile
	pf.Schema.Dirs = []string{answers.SchemaDir}
	pf.Schema.RegistryFile = answers.RegistryFile
	pf.Schema.Watch = answers.Watch
	pf.Database.URL = answers.Store
	pf.Server.Addr = answers.Addr
	pf.Auth.Secret = secret

	data, err := yaml.Marshal(&pf)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, answers.SchemaDir), 0755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}
	// 0600: the file holds the token signing secret
	if err := os.WriteFile(filepath.Join(dir, config.FileName+".yml"), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	manifest := filepath.Join(dir, answers.RegistryFile)
	if _, err := os.Stat(manifest); errors.Is(err, fs.ErrNotExist) {
		return loader.WriteManifest(manifest, &loader.Manifest{Entities: []schema.EntityDefinition{}})
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
