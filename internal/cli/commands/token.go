package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metagraph-dev/metagraph/internal/web/auth"
)

func newTokenCommand(a *app) *cobra.Command {
	var subject string
	var ttl time.Duration
	var scopes []string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin endpoints",
		Long: `Mint a bearer token for the admin endpoints.

The token is signed with auth.secret, so it is only accepted by servers
sharing that secret. It is printed alone on stdout.`,
		Example: `  curl -X POST -H "Authorization: Bearer $(metagraph token)" localhost:8080/v1/admin/reload`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Auth.Secret == "" {
				return fmt.Errorf("auth.secret is not set (config file or METAGRAPH_AUTH_SECRET)")
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = a.cfg.Auth.TokenTTL
			}
			if ttl < 0 {
				return fmt.Errorf("--ttl must not be negative")
			}

			token, err := auth.NewTokenService(a.cfg.Auth.Secret, ttl).Issue(subject, scopes...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, 0 for no expiry (default auth.token_ttl)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeAdmin}, "Scopes to grant")
	return cmd
}
