package metadata

import (
	"net"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"jornada/pkg/requestcontext"
)

// RequestIDHeader is echoed on every response so clients can quote it.
const RequestIDHeader = "X-Request-Id"

// ClientMetadata copies the request ID assigned by chi's RequestID
// middleware and the caller's IP into the request context. Mount it after
// chimw.RequestID.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if requestID := chimw.GetReqID(ctx); requestID != "" {
			ctx = requestcontext.WithRequestID(ctx, requestID)
			w.Header().Set(RequestIDHeader, requestID)
		}
		ctx = requestcontext.WithClientIP(ctx, ClientIPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For lists client, proxy1, proxy2, ...
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
