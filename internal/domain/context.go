package domain

import "context"

type sessionKey struct{}

// DefaultPerformer names the actor recorded when a request carries no identity.
const DefaultPerformer = "api_user"

// Session identifies the client session a request belongs to. Rollback
// records are scoped to a session.
type Session struct {
	ID        string
	Performer string
}

// WithSession stores a Session in the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext extracts the Session from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
