package httputil

import (
	"context"
	"net/http"
)

type contextKey string

const creatorIDKey contextKey = "creatorID"

// WithCreatorID returns the request with the authenticated member id set on
// its context.
func WithCreatorID(r *http.Request, creatorID string) *http.Request {
	ctx := context.WithValue(r.Context(), creatorIDKey, creatorID)
	return r.WithContext(ctx)
}

// GetCreatorID returns the authenticated member id, or "" when the request
// skipped the auth middleware.
func GetCreatorID(r *http.Request) string {
	creatorID, _ := r.Context().Value(creatorIDKey).(string)
	return creatorID
}
