package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
)

// RequestLogger returns middleware that stores a request-scoped logger in the
// context, enriched with correlation_id, session_id, actor, trace_id and
// span_id. Downstream code retrieves it with logger.FromContext(ctx).
//
// Mount it after RequestLogging, Tracing and SessionID so their fields are
// present. Auth, when mounted later, replaces the logger to add the actor.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
