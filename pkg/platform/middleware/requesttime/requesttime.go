// Package requesttime provides middleware for request-scoped time. All
// operations within a single HTTP request observe the same "now", so a token
// cannot be unexpired for one check and expired for the next within a request.
package requesttime

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"erasure/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and tags
// the request with a correlation ID when the caller did not supply one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
