package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// RequestContextMiddleware attaches a request scoped logger carrying the
// request id to the request context. An incoming X-Request-ID is reused.
func RequestContextMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			reqLogger := logger.With().Str("requestId", requestID).Logger()
			ctx := reqLogger.WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromRequest returns the logger attached by RequestContextMiddleware, or
// fallback when there is none.
func FromRequest(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	l := zerolog.Ctx(r.Context())
	if l == nil || l.GetLevel() == zerolog.Disabled {
		return fallback
	}
	return *l
}
