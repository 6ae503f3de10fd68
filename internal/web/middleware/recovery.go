package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	webcontext "github.com/metagraph-dev/metagraph/internal/web/context"
	"github.com/metagraph-dev/metagraph/internal/web/response"
)

// Recovery turns a handler panic into a logged 500 response
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", webcontext.GetRequestID(r.Context())),
					zap.String("panic", fmt.Sprint(rec)),
					zap.ByteString("stack", debug.Stack()),
				)
				response.Error(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
