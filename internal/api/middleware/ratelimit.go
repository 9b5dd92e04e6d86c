// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a sliding-window limiter answering 429 in the API envelope.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(max(1, int(cfg.WindowSize.Seconds())))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error":"rate limit exceeded"}` + "\n"))
		}),
	)
}

// APIRateLimit admits burst requests per window, where the window is sized
// so the sustained rate stays at rps.
func APIRateLimit(rps, burst int) func(http.Handler) http.Handler {
	if burst < rps {
		burst = rps
	}
	window := time.Duration(float64(time.Second) * float64(burst) / float64(rps))
	return RateLimit(RateLimitConfig{RequestLimit: burst, WindowSize: window})
}
