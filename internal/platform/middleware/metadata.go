package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"conforma/pkg/requestcontext"
)

// RequestMetadata stamps each request with a correlation ID and a single
// request time. Every timestamp written while handling the request comes from
// this one reading, so a multi-write operation never straddles a clock tick.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := r.Context()
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
