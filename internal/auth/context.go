// ABOUTME: Request context values for the hosting session and frob exchange outcome
// ABOUTME: Provides WithSessionID/SessionIDFromContext and WithStatus/StatusFromContext

package auth

import (
	"context"

	"github.com/2389/flickr-gateway/internal/flickr"
)

// Status is the outcome of a frob exchange performed for the current request.
type Status struct {
	// Attempted is true when the request carried a frob.
	Attempted bool
	// Session is the authorized session after a successful exchange.
	Session *flickr.AuthSession
	// Err is the exchange failure, if any.
	Err error
}

// Authorized reports whether the exchange produced a token.
func (s *Status) Authorized() bool {
	return s != nil && s.Err == nil && s.Session.State() == flickr.StateAuthorized
}

type sessionIDKey struct{}

type statusKey struct{}

// WithSessionID returns a new context carrying the hosting session ID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext returns the session ID, or "" when the request has none.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// MustSessionIDFromContext returns the session ID, panicking if not present.
func MustSessionIDFromContext(ctx context.Context) string {
	id := SessionIDFromContext(ctx)
	if id == "" {
		panic("auth: session ID not found in context")
	}
	return id
}

// WithStatus returns a new context with the frob exchange outcome attached.
func WithStatus(ctx context.Context, status *Status) context.Context {
	return context.WithValue(ctx, statusKey{}, status)
}

// StatusFromContext returns the frob exchange outcome, or nil when no frob
// was processed for this request.
func StatusFromContext(ctx context.Context) *Status {
	status, _ := ctx.Value(statusKey{}).(*Status)
	return status
}
