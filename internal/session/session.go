// Package session implements the session gate: it keeps the backend
// auth session in a signed cookie, refreshes it transparently on every
// protected request, and guards protected views from unauthenticated
// visitors (and the sign-in view from authenticated ones).
package session

import (
	"context"
	"time"
)

// Session is the explicit session object handed from the gate to
// downstream handlers and the bookmark list controller. It replaces
// ambient per-view auth checks with a single value constructed at the
// application boundary.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

const sessionKey ContextKey = "session"

// NewContext returns a context carrying the given session.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext extracts the session placed into the context by the
// refresh middleware. The second return value is false when the
// request is unauthenticated.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil && s.UserID != ""
}
