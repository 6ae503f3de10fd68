package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metagraph-dev/metagraph/internal/api"
	"github.com/metagraph-dev/metagraph/internal/cache"
	"github.com/metagraph-dev/metagraph/internal/loader"
	"github.com/metagraph-dev/metagraph/internal/mcpserver"
	"github.com/metagraph-dev/metagraph/internal/watch"
	"github.com/metagraph-dev/metagraph/internal/web/auth"
	"github.com/metagraph-dev/metagraph/internal/web/middleware"
	"github.com/metagraph-dev/metagraph/internal/web/ratelimit"
	"github.com/metagraph-dev/metagraph/internal/web/server"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	var watchFiles, withMCP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP",
		Long: `Serve the registry over HTTP.

Read endpoints live under /v1. POST /v1/admin/reload re-reads the schema
sources and needs a bearer token with the admin scope (see 'metagraph token').
GET /v1/watch is a WebSocket that announces every schema swap.

With --watch the schema directories are watched and reloaded on change. A
reload that fails keeps the current schema.`,
		Example: `  metagraph serve --addr :8080 --watch
  METAGRAPH_AUTH_SECRET=... metagraph serve`,
		Annotations: map[string]string{annotationLongRunning: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				a.cfg.Schema.Watch = watchFiles
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer a.logger.Sync()

			return a.serve(ctx, withMCP)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&watchFiles, "watch", false, "Reload when schema files change (overrides schema.watch)")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Also serve the MCP tools at /mcp")
	return cmd
}

func (a *app) serve(ctx context.Context, withMCP bool) error {
	logger := a.logger

	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	reg := registry.New(registry.WithLogger(logger.Named("registry")))
	reg.Replace(snap)

	queryCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer queryCache.Close()

	var tokens *auth.TokenService
	if a.cfg.Auth.Secret != "" {
		tokens = auth.NewTokenService(a.cfg.Auth.Secret, a.cfg.Auth.TokenTTL)
	} else {
		logger.Warn("auth.secret is not set, admin endpoints are disabled")
	}

	limiter, err := a.openLimiter(queryCache)
	if err != nil {
		return err
	}
	if closer, ok := limiter.(io.Closer); ok {
		defer closer.Close()
	}

	trusted, err := middleware.ParseTrustedProxies(a.cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = a.cfg.Server.CORSOrigins

	// HTTP and file-watch reloads share one reloader so they never interleave
	reloader := watch.NewReloader(reg, a.loadSnapshot, logger.Named("reload"))

	handler := api.New(api.Options{
		Registry:       reg,
		Queries:        cache.NewQueries(queryCache, a.cfg.Cache.TTL, logger.Named("cache")),
		Tokens:         tokens,
		Reloader:       reloader,
		CORS:           &cors,
		Profiling:      a.cfg.Server.Pprof,
		Limiter:        limiter,
		TrustedProxies: trusted,
		Logger:         logger.Named("http"),
	})

	var root http.Handler = handler
	if withMCP {
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcpserver.HTTPHandler(mcpserver.New(reg, Version, logger.Named("mcp"))))
		mux.Handle("/", handler)
		root = mux
	}

	config := server.DefaultConfig(root)
	config.Address = a.cfg.Server.Addr
	config.Logger = logger
	srv, err := server.New(config)
	if err != nil {
		return err
	}
	srv.OnShutdown(handler.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if a.cfg.Schema.Watch {
		if a.fromStore {
			logger.Warn("--watch has no effect with --from-store")
		} else {
			opts := a.loaderOptions()
			g.Go(func() error {
				return watch.Run(gctx, watch.Options{
					Dirs:     opts.Dirs,
					Files:    nonEmpty(opts.RegistryFile),
					Match:    loader.IsSource,
					Debounce: a.cfg.Schema.Debounce,
					Logger:   logger.Named("watch"),
				}, reloader)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openCache connects to Redis when cache.redis_addr is set and otherwise
// uses a process-local cache
func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	config := cache.DefaultConfig()
	if a.cfg.Cache.TTL > 0 {
		config.DefaultTTL = a.cfg.Cache.TTL
	}

	if a.cfg.Cache.RedisAddr == "" {
		return cache.NewMemoryCacheWithConfig(config), nil
	}
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: a.cfg.Cache.RedisAddr, Cache: config})
	if err != nil {
		return nil, err
	}
	a.logger.Info("using redis query cache", zap.String("addr", a.cfg.Cache.RedisAddr))
	return c, nil
}

// openLimiter builds the /v1 rate limiter. Servers sharing a Redis query
// cache share their limits too.
func (a *app) openLimiter(queryCache cache.Cache) (ratelimit.Limiter, error) {
	config := ratelimit.Config{Limit: a.cfg.Server.RateLimit, Window: a.cfg.Server.RateWindow}
	if config.Limit == 0 {
		return nil, nil
	}
	if rc, ok := queryCache.(*cache.RedisCache); ok {
		return ratelimit.NewRedisLimiter(rc.Client(), config, "metagraph:ratelimit:")
	}
	return ratelimit.NewTokenBucket(config, 5*time.Minute)
}

func nonEmpty(s ...string) []string {
	var out []string
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
