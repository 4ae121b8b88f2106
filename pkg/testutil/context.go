package testutil

import (
	"net/http"
	"time"

	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context, simulating
// what the auth middleware does for a valid bearer token.
func WithActor(req *http.Request, actor id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actor))
}

// WithRequestTime pins the request-scoped clock, so created/updated stamps in
// responses are deterministic.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
