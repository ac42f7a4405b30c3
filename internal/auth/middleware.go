package auth

import (
	"context"
	"log"
	"net/http"
	"strings"
)

type contextKey struct{}

// UserFrom extracts the authenticated user ID placed in ctx by Middleware.
func UserFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKey{}).(int64)
	return id, ok
}

// WithUser returns a context carrying the given user ID. Exported for
// handler tests that bypass the middleware.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// Middleware authenticates the request and injects the resolved user ID
// into the request context. The token is taken from the Authorization
// header, or from the access_token query parameter since EventSource
// clients cannot set headers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := v.Verify(token)
		if err != nil {
			log.Printf("[auth] rejected request from %s: %v", r.RemoteAddr, err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
