package middleware

import (
	"net"
	"net/http"

	"github.com/sec-tools/iac-sentinel/pkg/guard"
)

// Limit rejects requests over the per-client budget with 429. Clients are
// keyed by remote IP.
func Limit(limiter *guard.KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			key, _, err := net.SplitHostPort(req.RemoteAddr)
			if err != nil {
				key = req.RemoteAddr
			}

			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":"error","message":"Rate limit exceeded"}` + "\n"))
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}
