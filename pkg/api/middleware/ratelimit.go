// Package middleware holds swr-specific chi middleware.
package middleware

import (
	"net/http"

	"github.com/betterforces/swr/pkg/ratelimit"
)

// RateLimit rejects requests with 429 once the API-level allowance is spent.
// This limiter protects the API surface itself and is independent of the
// upstream fetch limiter the workers share.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":"error","error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
