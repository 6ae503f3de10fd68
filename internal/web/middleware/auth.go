package middleware

import (
	"net/http"
	"strings"

	"github.com/metagraph-dev/metagraph/internal/web/auth"
	webcontext "github.com/metagraph-dev/metagraph/internal/web/context"
	"github.com/metagraph-dev/metagraph/internal/web/response"
)

// RequireScope rejects requests without a valid bearer token granting scope.
// The token's subject and scopes are stored in the request context.
func RequireScope(tokens *auth.TokenService, scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="metagraph"`)
				response.Error(w, r, http.StatusUnauthorized, "unauthorized", "authorization required")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				response.Error(w, r, http.StatusUnauthorized, "unauthorized", "invalid authorization format")
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if !claims.HasScope(scope) {
				response.Error(w, r, http.StatusForbidden, "forbidden", "token lacks the "+scope+" scope")
				return
			}

			ctx := webcontext.SetSubject(r.Context(), claims.Subject)
			ctx = webcontext.SetScopes(ctx, claims.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
