package middleware

import (
	"context"
	"net/http"
)

type contextKeyCallerKey struct{}

// CallerKey copies the X-Caller-Key header into the context. Authentication of
// the key itself happens elsewhere; the gateway only needs to know who the
// request claims to act as.
func CallerKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Caller-Key")
		ctx := context.WithValue(r.Context(), contextKeyCallerKey{}, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCallerKey retrieves the caller public key from the context.
func GetCallerKey(ctx context.Context) string {
	if key, ok := ctx.Value(contextKeyCallerKey{}).(string); ok {
		return key
	}
	return ""
}

// WithCallerKey injects a caller key into a context. Useful for tests that
// bypass the HTTP middleware chain.
func WithCallerKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKeyCallerKey{}, key)
}
