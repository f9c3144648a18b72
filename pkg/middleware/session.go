package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
)

// SessionID reads the client's browsing session id from header, issuing a new
// one when the request has none, and echoes it in the response so the client
// can keep using it. Handlers read it with logger.SessionIDFromContext.
func SessionID(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(logger.WithSessionID(r.Context(), id)))
		})
	}
}
