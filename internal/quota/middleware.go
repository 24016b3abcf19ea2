package quota

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metrics"
	"github.com/Fabeuss/oasis/pkg/protocol"
)

// KeyFunc extracts the rate limit key from a request. ok=false lets the
// request through unlimited.
type KeyFunc func(r *http.Request) (key string, ok bool)

// ClientIP keys requests by the remote address host.
func ClientIP(r *http.Request) (string, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, r.RemoteAddr != ""
	}
	return host, true
}

// RateLimitMiddleware returns middleware that enforces limiter per key.
// scope labels rejections in metrics.
func RateLimitMiddleware(limiter *RateLimiter, scope string, keyOf KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter.Unlimited() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := keyOf(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(key) {
				metrics.RecordRateLimitHit(scope)
				logging.WithContext(r.Context()).Debug("rate limited",
					logging.String("scope", scope))
				w.Header().Set("Retry-After", strconv.Itoa(limiter.RetryAfter(key)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(protocol.ErrorResponse{
					Error: "rate limit exceeded",
					Code:  http.StatusTooManyRequests,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
