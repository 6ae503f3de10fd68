// Package api serves the registry over HTTP: read-only schema queries, an
// authenticated reload endpoint, and WebSocket and Server-Sent Event feeds
// of snapshot swaps.
package api

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/internal/cache"
	"github.com/metagraph-dev/metagraph/internal/web/auth"
	"github.com/metagraph-dev/metagraph/internal/web/middleware"
	"github.com/metagraph-dev/metagraph/internal/web/profiling"
	"github.com/metagraph-dev/metagraph/internal/web/ratelimit"
	"github.com/metagraph-dev/metagraph/internal/web/websocket"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// Reloader re-reads the schema sources and swaps the result into the
// registry when it differs, reporting whether a swap happened. Reloads
// triggered over HTTP and by file watching share one Reloader so they are
// serialized.
type Reloader interface {
	Reload(ctx context.Context, changed []string) (bool, error)
}

// Options configures the API
type Options struct {
	Registry *registry.Registry

	// Queries memoizes relationship and search queries. Nil computes them
	// on every request.
	Queries *cache.Queries

	// Tokens guards the admin routes. Nil disables them.
	Tokens   *auth.TokenService
	Reloader Reloader

	CORS      *middleware.CORSConfig
	Profiling bool

	// Limiter throttles /v1 per client address. Nil disables limiting.
	Limiter ratelimit.Limiter
	// TrustedProxies may report the client address in X-Forwarded-For.
	// Without them the limiter keys on the connected peer.
	TrustedProxies []netip.Prefix

	Logger *zap.Logger
}

// API is the HTTP surface of a registry
type API struct {
	reg     *registry.Registry
	queries *cache.Queries
	tokens  *auth.TokenService
	reload  Reloader
	hub     *websocket.Hub
	logger  *zap.Logger

	unsubscribe func()
	handler     http.Handler
}

// New builds the API and starts the watch hub. Call Close to stop it.
func New(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queries := opts.Queries
	if queries == nil {
		queries = cache.NewQueries(noCache{}, 0, logger)
	}

	a := &API{
		reg:     opts.Registry,
		queries: queries,
		tokens:  opts.Tokens,
		reload:  opts.Reloader,
		hub:     websocket.NewHub(logger.Named("watch")),
		logger:  logger,
	}
	go a.hub.Run()

	a.unsubscribe = a.reg.Subscribe(func(snap *registry.Snapshot) {
		msg, err := websocket.NewMessage(websocket.TypeSnapshot, newSnapshotEvent(snap))
		if err == nil {
			err = a.hub.Broadcast(msg)
		}
		if err != nil {
			a.logger.Warn("failed to announce snapshot", zap.Uint64("version", snap.Version()), zap.Error(err))
		}
	})

	a.handler = a.routes(opts)
	return a
}

// ServeHTTP implements http.Handler
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// Close stops announcing snapshots and disconnects watchers
func (a *API) Close(context.Context) error {
	a.unsubscribe()
	a.hub.Shutdown()
	return nil
}

func (a *API) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.Logging(a.logger, "/healthz"))
	if opts.CORS != nil {
		r.Use(middleware.CORS(*opts.CORS))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		notFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		methodNotAllowed(w, r)
	})

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				Limiter: opts.Limiter,
				KeyFunc: middleware.TrustedClientIP(opts.TrustedProxies),
				Logger:  a.logger,
			}))
		}

		r.Get("/aspects", a.listAspects)
		r.Get("/aspects/{name}", a.getAspect)

		r.Get("/entities", a.listEntities)
		r.Route("/entities/{name}", func(r chi.Router) {
			r.Get("/", a.getEntity)
			r.Get("/relationships/{direction}", a.entityRelationships)
			r.Get("/searchable", a.searchableFields)
			r.Get("/graph", a.entityGraph)
		})

		r.Get("/relationships", a.relationshipTypes)

		watch := websocket.DefaultConfig()
		watch.OnConnect = func() (*websocket.Message, error) {
			return websocket.NewMessage(websocket.TypeSnapshot, newSnapshotEvent(a.reg.Snapshot()))
		}
		r.Method(http.MethodGet, "/watch", websocket.Handler(a.hub, watch))
		r.Get("/events", a.events)

		if a.tokens != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(a.tokens, auth.ScopeAdmin))
				r.Post("/admin/reload", a.reloadSchema)
			})
		}
	})

	if opts.Profiling && a.tokens != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(a.tokens, auth.ScopeAdmin))
			profiling.RegisterRoutes(r)
		})
	}

	return r
}

// noCache is the Cache used when none is configured: every read misses
type noCache struct{}

func (noCache) Get(_ context.Context, key string) ([]byte, error) {
	return nil, cache.ErrCacheMiss{Key: key}
}
func (noCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noCache) Delete(context.Context, string) error                     { return nil }
func (noCache) Clear(context.Context) error                              { return nil }
func (noCache) Exists(context.Context, string) (bool, error)             { return false, nil }
func (noCache) Close() error                                             { return nil }
