package interceptors

import (
	"context"

	"project-canvas-hub/internal/security"
)

type contextKey struct{ name string }

var (
	requesterIDKey = contextKey{"requester_id"}
	localityKey    = contextKey{"locality"}
)

// WithRequester returns a context carrying the authenticated requester id (the access token subject).
// Handlers read it via GetRequesterID and prefer it over any requester id in the request body.
func WithRequester(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, requesterIDKey, requesterID)
}

// GetRequesterID returns the requester_id from context and true if set; otherwise "", false.
func GetRequesterID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requesterIDKey).(string)
	return v, ok
}

// WithLocality records the gate's classification of the caller.
func WithLocality(ctx context.Context, loc security.Locality) context.Context {
	return context.WithValue(ctx, localityKey, loc)
}

// GetLocality returns the locality set by the gate and true if set.
func GetLocality(ctx context.Context) (security.Locality, bool) {
	v, ok := ctx.Value(localityKey).(security.Locality)
	return v, ok
}
