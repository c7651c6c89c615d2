package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const correlationIDKey contextKey = "correlationId"

// CorrelationMiddleware reads X-Correlation-ID and adds it to the request
// context and logger, generating one when the client didn't send any. This
// enables end-to-end tracing across the gateway and the admin REST, which
// receives the same header on outbound calls.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		// Echo to the response for client verification.
		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		logger := log.With().Str("correlation_id", correlationID).Logger()
		ctx = logger.WithContext(ctx)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		logger.Debug().
			Str("method", r.Method).
			Str("path", redactPath(r.URL.Path)).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

// redactPath hides the token segment of bot routes so secrets never reach
// the logs.
func redactPath(path string) string {
	if !strings.HasPrefix(path, "/bot") {
		return path
	}
	rest := strings.TrimPrefix(path, "/bot")
	if i := strings.Index(rest, "/"); i >= 0 {
		return "/bot<token>" + rest[i:]
	}
	return "/bot<token>"
}

// GetCorrelationID retrieves the correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}
