package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/internal/mcpserver"
	"github.com/metagraph-dev/metagraph/internal/web/server"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

func newMCPCommand(a *app) *cobra.Command {
	var transport, addr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the registry as Model Context Protocol tools",
		Long: `Serve the registry as Model Context Protocol tools.

The stdio transport is what desktop assistants launch; logs go to stderr so
stdout carries only protocol messages. The http transport serves the
streamable HTTP transport at --addr.`,
		Example: `  metagraph mcp
  metagraph mcp --transport http --addr localhost:8081`,
		Annotations: map[string]string{annotationLongRunning: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			snap, err := a.loadSnapshot(ctx)
			if err != nil {
				return err
			}
			reg := registry.New(registry.WithLogger(a.logger.Named("registry")))
			reg.Replace(snap)
			srv := mcpserver.New(reg, Version, a.logger.Named("mcp"))

			switch transport {
			case "stdio":
				a.logger.Info("mcp server starting", zap.String("transport", transport))
				return srv.Run(ctx, &mcp.StdioTransport{})
			case "http":
				config := server.DefaultConfig(mcpserver.HTTPHandler(srv))
				config.Address = addr
				config.Logger = a.logger
				httpSrv, err := server.New(config)
				if err != nil {
					return err
				}
				return httpSrv.Run(ctx)
			default:
				return fmt.Errorf("unknown transport: %s (use stdio or http)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "localhost:8081", "Listen address for --transport http")
	return cmd
}
