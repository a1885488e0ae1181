// Package requesttime pins one "now" per request or batch so every
// expiry check and timestamp written by a single operation agrees.
package requesttime

import (
	"context"
	"net/http"
	"time"
)

type contextKeyRequestTime struct{}

// Clock is the time source used by Middleware.
var Clock = time.Now

// Middleware stamps the request context with the time the request arrived.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithTime(r.Context(), Clock())))
	})
}

// Now returns the pinned time in UTC, or the current time when none is pinned.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return Clock().UTC()
}

// WithTime pins t on ctx. Workers use it to give a whole sweep one clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyRequestTime{}, t.UTC())
}
