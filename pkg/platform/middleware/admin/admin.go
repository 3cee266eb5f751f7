// Package admin guards back-office routes.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
	"jornada/pkg/platform/httputil"
	"jornada/pkg/requestcontext"
)

const (
	TokenHeader = "X-Admin-Token"
	ActorHeader = "X-Actor-Id"
)

// RequireBackOffice rejects requests without the shared back-office token
// and puts the acting user named in ActorHeader on the context.
func RequireBackOffice(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token := r.Header.Get(TokenHeader)
			// constant time
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestID,
					"client_ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			actor, err := domain.ParseUserID(r.Header.Get(ActorHeader))
			if err != nil {
				logger.WarnContext(ctx, "back-office request without actor",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "acting user required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActorID(ctx, actor)))
		})
	}
}
