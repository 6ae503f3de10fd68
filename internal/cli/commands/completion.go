package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// NewCompletionCommand creates the completion command for shell completions
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script.

Entity and aspect arguments complete from the schema set in the current
project.

  $ source <(metagraph completion bash)
  $ metagraph completion zsh > "${fpath[1]}/_metagraph"
  $ metagraph completion fish | source
  PS> metagraph completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			default:
				return root.GenPowerShellCompletionWithDesc(w)
			}
		},
	}
}

// completeNames completes the first argument from the names listed by names.
// Loading errors produce no suggestions rather than noise in the shell.
func completeNames(a *app, names func(*registry.Snapshot) []string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		if a.cfg == nil {
			if err := a.setup(cmd); err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
		}
		snap, err := a.loadSnapshot(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []cobra.Completion
		for _, n := range names(snap) {
			if strings.HasPrefix(strings.ToLower(n), strings.ToLower(toComplete)) {
				out = append(out, n)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}
