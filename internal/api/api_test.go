package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metagraph-dev/metagraph/internal/cache"
	"github.com/metagraph-dev/metagraph/internal/loader"
	"github.com/metagraph-dev/metagraph/internal/watch"
	"github.com/metagraph-dev/metagraph/internal/web/auth"
	"github.com/metagraph-dev/metagraph/internal/web/middleware"
	"github.com/metagraph-dev/metagraph/internal/web/ratelimit"
	"github.com/metagraph-dev/metagraph/internal/web/response"
	"github.com/metagraph-dev/metagraph/internal/web/websocket"
	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

const testSecret = "test-secret"

func loadCatalog(t *testing.T) *registry.Snapshot {
	t.Helper()
	snap, err := loader.Load(context.Background(), loader.Options{
		Dirs:         []string{"../loader/testdata/catalog/schemas"},
		RegistryFile: "../loader/testdata/catalog/entity-registry.yml",
	})
	require.NoError(t, err)
	return snap
}

func statusOnly(t *testing.T) *registry.Snapshot {
	t.Helper()
	a, err := avro.DecodeAspect([]byte(`{"type":"record","Aspect":{"name":"status"},"name":"Status","fields":[{"name":"removed","type":"boolean"}]}`))
	require.NoError(t, err)
	b := registry.NewBuilder()
	require.NoError(t, b.RegisterAspect(a))
	require.NoError(t, b.DefineEntity(&schema.EntityDefinition{Name: "tag", KeyAspect: "status"}))
	return b.Build()
}

type fixture struct {
	api      *API
	reg      *registry.Registry
	tokens   *auth.TokenService
	reloader *watch.Reloader
}

// newFixture serves the catalog. A non-nil load enables the reload endpoint.
func newFixture(t *testing.T, load watch.LoadFunc) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg := registry.New(registry.WithLogger(logger))
	reg.Replace(loadCatalog(t))

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { mem.Close() })

	tokens := auth.NewTokenService(testSecret, time.Hour)
	cors := middleware.DefaultCORSConfig()
	opts := Options{
		Registry:  reg,
		Queries:   cache.NewQueries(mem, time.Minute, logger),
		Tokens:    tokens,
		CORS:      &cors,
		Profiling: true,
		Logger:    logger,
	}
	var reloader *watch.Reloader
	if load != nil {
		reloader = watch.NewReloader(reg, load, logger)
		opts.Reloader = reloader
	}
	a := New(opts)
	t.Cleanup(func() { a.Close(context.Background()) })

	return &fixture{api: a, reg: reg, tokens: tokens, reloader: reloader}
}

func (f *fixture) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.api.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) adminHeader(t *testing.T) http.Header {
	t.Helper()
	token, err := f.tokens.Issue("ops", auth.ScopeAdmin)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, f.reg.Snapshot().Fingerprint(), body["fingerprint"])
}

func TestAspects(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/aspects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[aspectSummary]](t, rec)
	assert.Equal(t, 10, list.Total)
	assert.Equal(t, "domains", list.Items[0].Name)

	rec = f.do(t, http.MethodGet, "/v1/aspects/ownership", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "Ownership", doc["name"])
	assert.Equal(t, map[string]any{"name": "ownership"}, doc["Aspect"])

	rec = f.do(t, http.MethodGet, "/v1/aspects/chartInfo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[response.ErrorResponse](t, rec).Error)
}

func TestEntities(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[listResponse[schema.EntityDefinition]](t, rec).Total)

	rec = f.do(t, http.MethodGet, "/v1/entities?category=core", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, e := range decode[listResponse[schema.EntityDefinition]](t, rec).Items {
		assert.Equal(t, "core", e.Category)
	}

	rec = f.do(t, http.MethodGet, "/v1/entities/MLMODELGROUP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	e := decode[schema.EntityDefinition](t, rec)
	assert.Equal(t, "mlModelGroup", e.Name)
	assert.Equal(t, "mlModelGroupKey", e.KeyAspect)

	rec = f.do(t, http.MethodGet, "/v1/entities/chart", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityRelationships(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		target string
		status int
		names  []string
	}{
		{"/v1/entities/mlModelGroup/relationships/outgoing", http.StatusOK, []string{"OwnedBy", "OwnedBy", "AssociatedWith"}},
		{"/v1/entities/mlModelGroup/relationships/out?name=OwnedBy", http.StatusOK, []string{"OwnedBy", "OwnedBy"}},
		{"/v1/entities/mlModelGroup/relationships/incoming", http.StatusOK, []string{"MemberOf"}},
		{"/v1/entities/mlModelGroup/relationships/sideways", http.StatusBadRequest, nil},
		{"/v1/entities/chart/relationships/incoming", http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var names []string
			for _, rel := range decode[listResponse[registry.Relationship]](t, rec).Items {
				names = append(names, rel.Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestSearchableFields(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/entities/mlModelGroup/searchable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[registry.SearchableField]](t, rec)

	want, err := f.reg.Snapshot().SearchableFields("mlModelGroup")
	require.NoError(t, err)
	assert.Equal(t, len(want), list.Total)
}

func TestEntityGraph(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/entities/mlModel/graph?depth=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[registry.Graph](t, rec)
	assert.Equal(t, "mlModel", g.Root)
	assert.Contains(t, g.Nodes, "mlModelGroup")
	assert.Contains(t, g.Nodes, "domain", "reached through mlModelGroup at depth 2")

	rec = f.do(t, http.MethodGet, "/v1/entities/mlModelGroup/graph?direction=incoming&name=MemberOf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g = decode[registry.Graph](t, rec)
	assert.Equal(t, []string{"mlModelGroup", "mlModel"}, g.Nodes)

	rec = f.do(t, http.MethodGet, "/v1/entities/mlModel/graph?depth=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelationshipTypes(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/relationships", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	for _, rt := range decode[listResponse[registry.RelationshipType]](t, rec).Items {
		names = append(names, rt.Name)
	}
	assert.Contains(t, names, "OwnedBy")
	assert.Contains(t, names, "MemberOf")
}

func TestConditionalGet(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/entities", nil)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = f.do(t, http.MethodGet, "/v1/entities", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	f.reg.Replace(statusOnly(t))
	rec = f.do(t, http.MethodGet, "/v1/entities", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusOK, rec.Code, "a new schema invalidates the tag")
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestConditionalGet_MissingResourceIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	etag := f.do(t, http.MethodGet, "/v1/entities", nil).Header().Get("ETag")
	require.NotEmpty(t, etag)
	match := http.Header{"If-None-Match": {etag}}

	for _, target := range []string{
		"/v1/entities/unknown",
		"/v1/aspects/unknown",
		"/v1/entities/unknown/relationships/outgoing",
		"/v1/entities/unknown/searchable",
		"/v1/entities/unknown/graph",
	} {
		rec := f.do(t, http.MethodGet, target, match)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Empty(t, rec.Header().Get("ETag"), target)
	}

	rec := f.do(t, http.MethodGet, "/v1/entities/mlModel", match)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestReload(t *testing.T) {
	t.Run("requires admin token", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(t, http.MethodPost, "/v1/admin/reload", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		token, err := f.tokens.Issue("reader")
		require.NoError(t, err)
		rec = f.do(t, http.MethodPost, "/v1/admin/reload", http.Header{"Authorization": {"Bearer " + token}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(t, http.MethodPost, "/v1/admin/reload", f.adminHeader(t))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("unchanged schema keeps the version", func(t *testing.T) {
		f := newFixture(t, func(ctx context.Context) (*registry.Snapshot, error) {
			return loadCatalog(t), nil
		})
		before := f.reg.Snapshot().Version()

		rec := f.do(t, http.MethodPost, "/v1/admin/reload", f.adminHeader(t))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, false, decode[map[string]any](t, rec)["changed"])
		assert.Equal(t, before, f.reg.Snapshot().Version())
	})

	t.Run("changed schema is swapped in", func(t *testing.T) {
		next := statusOnly(t)
		f := newFixture(t, func(ctx context.Context) (*registry.Snapshot, error) {
			return next, nil
		})
		before := f.reg.Snapshot().Version()

		rec := f.do(t, http.MethodPost, "/v1/admin/reload", f.adminHeader(t))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, true, decode[map[string]any](t, rec)["changed"])

		snap := f.reg.Snapshot()
		assert.Greater(t, snap.Version(), before)
		assert.Equal(t, next.Fingerprint(), snap.Fingerprint())
	})

	t.Run("failed reload keeps the current schema", func(t *testing.T) {
		f := newFixture(t, func(ctx context.Context) (*registry.Snapshot, error) {
			return nil, fmt.Errorf("schemas/a.avsc: %w", schema.ErrUnknownAspect)
		})
		before := f.reg.Snapshot()

		rec := f.do(t, http.MethodPost, "/v1/admin/reload", f.adminHeader(t))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Same(t, before, f.reg.Snapshot())

		f = newFixture(t, func(ctx context.Context) (*registry.Snapshot, error) {
			return nil, errors.New("disk on fire")
		})
		rec = f.do(t, http.MethodPost, "/v1/admin/reload", f.adminHeader(t))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("shares the file watch reloader", func(t *testing.T) {
		next := statusOnly(t)
		var inFlight, overlaps atomic.Int32
		f := newFixture(t, func(ctx context.Context) (*registry.Snapshot, error) {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer inFlight.Add(-1)
			time.Sleep(5 * time.Millisecond)
			return next, nil
		})
		header := f.adminHeader(t)

		var wg sync.WaitGroup
		codes := make(chan int, 4)
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				codes <- f.do(t, http.MethodPost, "/v1/admin/reload", header).Code
			}()
			go func() {
				defer wg.Done()
				f.reloader.Reload(context.Background(), []string{"a.avsc"})
			}()
		}
		wg.Wait()
		close(codes)

		for code := range codes {
			assert.Equal(t, http.StatusOK, code)
		}
		assert.Zero(t, overlaps.Load(), "reloads never run concurrently")
		assert.Equal(t, next.Fingerprint(), f.reg.Snapshot().Fingerprint())
	})
}

func TestProfilingRequiresAdmin(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/debug/pprof/", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/debug/pprof/", f.adminHeader(t))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodOptions, "/v1/entities", http.Header{
		"Origin":                        {"http://docs.example.com"},
		"Access-Control-Request-Method": {"GET"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewTokenBucket(ratelimit.Config{Limit: 1, Window: time.Hour}, 0)
	require.NoError(t, err)
	defer limiter.Close()

	reg := registry.New()
	reg.Replace(loadCatalog(t))
	a := New(Options{Registry: reg, Limiter: limiter, Logger: zaptest.NewLogger(t)})
	defer a.Close(context.Background())

	get := func(target string) int {
		rec := httptest.NewRecorder()
		a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/v1/entities"))
	assert.Equal(t, http.StatusTooManyRequests, get("/v1/aspects"))
	assert.Equal(t, http.StatusOK, get("/healthz"), "health checks are not limited")
}

func TestRateLimit_TrustedProxies(t *testing.T) {
	limiter, err := ratelimit.NewTokenBucket(ratelimit.Config{Limit: 1, Window: time.Hour}, 0)
	require.NoError(t, err)
	defer limiter.Close()

	trusted, err := middleware.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	reg := registry.New()
	reg.Replace(loadCatalog(t))
	a := New(Options{Registry: reg, Limiter: limiter, TrustedProxies: trusted, Logger: zaptest.NewLogger(t)})
	defer a.Close(context.Background())

	get := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/entities", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		a.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("10.0.0.1:80", "203.0.113.1"))
	assert.Equal(t, http.StatusOK, get("10.0.0.1:80", "203.0.113.2"), "clients behind the proxy are limited separately")
	assert.Equal(t, http.StatusTooManyRequests, get("10.0.0.1:80", "203.0.113.1"))

	assert.Equal(t, http.StatusOK, get("198.51.100.9:80", "203.0.113.3"))
	assert.Equal(t, http.StatusTooManyRequests, get("198.51.100.9:80", "203.0.113.4"), "untrusted peers cannot pick their key")
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v2/entities", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[response.ErrorResponse](t, rec).RequestID)

	rec = f.do(t, http.MethodDelete, "/v1/entities", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWatch(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.api)
	t.Cleanup(srv.Close)

	ws, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/watch", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg websocket.Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, websocket.TypeSnapshot, msg.Type)
	var initial snapshotEvent
	require.NoError(t, json.Unmarshal(msg.Data, &initial))
	assert.Equal(t, f.reg.Snapshot().Fingerprint(), initial.Fingerprint)
	assert.Equal(t, 5, initial.Entities)

	require.Eventually(t, func() bool { return f.api.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	f.reg.Replace(statusOnly(t))

	require.NoError(t, ws.ReadJSON(&msg))
	var next snapshotEvent
	require.NoError(t, json.Unmarshal(msg.Data, &next))
	assert.Equal(t, 1, next.Entities)
	assert.Greater(t, next.Version, initial.Version)
}

// readEvent reads one Server-Sent Event and returns its fields
func readEvent(t *testing.T, sc *bufio.Scanner) map[string]string {
	t.Helper()
	fields := map[string]string{}
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(fields) > 0 {
				return fields
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		k, v, _ := strings.Cut(line, ": ")
		fields[k] = v
	}
	require.NoError(t, sc.Err())
	t.Fatal("event stream ended")
	return nil
}

func TestEvents(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.api)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	first := readEvent(t, sc)
	assert.Equal(t, websocket.TypeSnapshot, first["event"])
	assert.Equal(t, fmt.Sprint(f.reg.Snapshot().Version()), first["id"])
	var initial snapshotEvent
	require.NoError(t, json.Unmarshal([]byte(first["data"]), &initial))
	assert.Equal(t, 5, initial.Entities)

	f.reg.Replace(statusOnly(t))

	next := readEvent(t, sc)
	var swapped snapshotEvent
	require.NoError(t, json.Unmarshal([]byte(next["data"]), &swapped))
	assert.Equal(t, 1, swapped.Entities)
	assert.Greater(t, swapped.Version, initial.Version)
}
