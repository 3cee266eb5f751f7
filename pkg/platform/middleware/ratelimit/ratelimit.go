// Package ratelimit throttles callers with a sliding window counter.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"jornada/pkg/platform/httputil"
)

type Config struct {
	RequestLimit int
	WindowSize   time.Duration
	// KeyFunc extracts the limit key; defaults to the client IP.
	KeyFunc httprate.KeyFunc
}

// Limit returns middleware rejecting callers over cfg.RequestLimit per
// cfg.WindowSize with 429 and a Retry-After header. A non-positive limit
// disables throttling.
func Limit(cfg Config) func(http.Handler) http.Handler {
	if cfg.RequestLimit <= 0 || cfg.WindowSize <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(int(cfg.WindowSize.Seconds()))
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:       "rate_limit_exceeded",
				Description: "too many requests, try again later",
			})
		}),
	)
}

// ByDriver keys the limit on the driver path parameter so one misbehaving
// device cannot starve the others behind the same NAT.
func ByDriver(r *http.Request) (string, error) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/drivers/")
	if !ok || rest == "" {
		return httprate.KeyByIP(r)
	}
	driverID, _, _ := strings.Cut(rest, "/")
	return "driver:" + driverID, nil
}
