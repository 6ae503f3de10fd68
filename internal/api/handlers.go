package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/metagraph-dev/metagraph/internal/cache"
	"github.com/metagraph-dev/metagraph/internal/web/query"
	"github.com/metagraph-dev/metagraph/internal/web/response"
	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// Version is reported by /healthz. Set by the CLI from its build info.
var Version = "dev"

type snapshotEvent struct {
	Version     uint64 `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Aspects     int    `json:"aspects"`
	Entities    int    `json:"entities"`
}

func newSnapshotEvent(snap *registry.Snapshot) snapshotEvent {
	return snapshotEvent{
		Version:     snap.Version(),
		Fingerprint: snap.Fingerprint(),
		Aspects:     snap.NumAspects(),
		Entities:    snap.NumEntities(),
	}
}

type aspectSummary struct {
	Name       string `json:"name"`
	RecordName string `json:"recordName"`
	Namespace  string `json:"namespace,omitempty"`
	Doc        string `json:"doc,omitempty"`
	Fields     int    `json:"fields"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: len(items)}
}

// notModified sets the snapshot's ETag and writes 304 when the client's copy
// is still current. Handlers call it only once the request has resolved, so
// lookups that fail still report their error.
func notModified(w http.ResponseWriter, r *http.Request, snap *registry.Snapshot) bool {
	return cache.CheckNotModified(w, r, cache.ETag(snap.Fingerprint()))
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	response.JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     Version,
		"snapshot":    snap.Version(),
		"fingerprint": snap.Fingerprint(),
	})
}

func (a *API) listAspects(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	if notModified(w, r, snap) {
		return
	}
	var items []aspectSummary
	for asp := range snap.ListAspects() {
		items = append(items, aspectSummary{
			Name:       asp.Name,
			RecordName: asp.RecordName,
			Namespace:  asp.Namespace,
			Doc:        asp.Doc,
			Fields:     len(asp.Fields),
		})
	}
	response.JSON(w, http.StatusOK, list(items))
}

func (a *API) getAspect(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	asp, err := snap.GetAspect(chi.URLParam(r, "name"))
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	if notModified(w, r, snap) {
		return
	}
	doc, err := avro.EncodeAspect(asp)
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	response.RawJSON(w, http.StatusOK, doc)
}

func (a *API) listEntities(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	if notModified(w, r, snap) {
		return
	}
	category := r.URL.Query().Get("category")
	var items []*schema.EntityDefinition
	for e := range snap.ListEntities() {
		if category != "" && !strings.EqualFold(e.Category, category) {
			continue
		}
		items = append(items, e)
	}
	response.JSON(w, http.StatusOK, list(items))
}

func (a *API) getEntity(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	e, err := snap.GetEntity(chi.URLParam(r, "name"))
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	if notModified(w, r, snap) {
		return
	}
	response.JSON(w, http.StatusOK, e)
}

func (a *API) entityRelationships(w http.ResponseWriter, r *http.Request) {
	dir, err := registry.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	snap := a.reg.Snapshot()
	rels, err := a.queries.Relationships(r.Context(), snap, chi.URLParam(r, "name"), dir)
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	if notModified(w, r, snap) {
		return
	}
	if names := query.Set(r, "name"); len(names) > 0 {
		filtered := rels[:0:0]
		for _, rel := range rels {
			if names[rel.Name] {
				filtered = append(filtered, rel)
			}
		}
		rels = filtered
	}
	response.JSON(w, http.StatusOK, list(rels))
}

func (a *API) searchableFields(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	fields, err := a.queries.SearchableFields(r.Context(), snap, chi.URLParam(r, "name"))
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	if notModified(w, r, snap) {
		return
	}
	response.JSON(w, http.StatusOK, list(fields))
}

func (a *API) entityGraph(w http.ResponseWriter, r *http.Request) {
	depth, err := query.Int(r, "depth", 1, 0)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	opts := registry.GraphOptions{Depth: depth, Names: query.List(r, "name")}
	if v := r.URL.Query().Get("direction"); v != "" {
		dir, err := registry.ParseDirection(v)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		opts.Reverse = dir == registry.Incoming
	}

	snap := a.reg.Snapshot()
	g, err := snap.Traverse(chi.URLParam(r, "name"), opts)
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	if notModified(w, r, snap) {
		return
	}
	response.JSON(w, http.StatusOK, g)
}

func (a *API) relationshipTypes(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot()
	types, err := snap.RelationshipTypes()
	if err != nil {
		response.RenderError(w, r, err)
		return
	}
	if notModified(w, r, snap) {
		return
	}
	response.JSON(w, http.StatusOK, list(types))
}

func (a *API) reloadSchema(w http.ResponseWriter, r *http.Request) {
	if a.reload == nil {
		response.Error(w, r, http.StatusNotImplemented, "not_implemented", "reload is not configured")
		return
	}
	changed, err := a.reload.Reload(r.Context(), nil)
	if err != nil {
		status, code := response.Classify(err)
		if status == http.StatusInternalServerError && !errors.Is(err, r.Context().Err()) {
			status, code = http.StatusUnprocessableEntity, "invalid_schema"
		}
		response.Error(w, r, status, code, err.Error())
		return
	}

	snap := a.reg.Snapshot()
	response.JSON(w, http.StatusOK, map[string]any{
		"changed":  changed,
		"snapshot": newSnapshotEvent(snap),
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	response.Error(w, r, http.StatusBadRequest, "bad_request", msg)
}

func notFound(w http.ResponseWriter, r *http.Request, msg string) {
	response.Error(w, r, http.StatusNotFound, "not_found", msg)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed on "+r.URL.Path)
}
