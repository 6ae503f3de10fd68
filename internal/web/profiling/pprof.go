// Package profiling mounts the pprof endpoints on a chi router. The routes
// expose goroutine stacks and heap contents, so callers mount them behind
// the admin scope.
package profiling

import (
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// Path is where the profiling routes are mounted
const Path = "/debug/pprof"

// RegisterRoutes adds the pprof handlers under Path
func RegisterRoutes(router chi.Router) {
	router.Route(Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
}
