package hub

import (
	"context"

	"github.com/google/uuid"

	"github.com/memohai/chatgate/internal/identity"
)

// Session is the hub's handle on one live client connection. The transport owns it and
// closes it when the connection ends; the hub only observes it.
type Session struct {
	id       string
	identity identity.Identity
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSession creates an open session for id. Pass identity.Anonymous for an
// unauthenticated connection.
func NewSession(parent context.Context, id identity.Identity) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{id: uuid.NewString(), identity: id, ctx: ctx, cancel: cancel}
}

// ID returns the unique session ID.
func (s *Session) ID() string { return s.id }

// Identity returns the identity attached at connection time.
func (s *Session) Identity() identity.Identity { return s.identity }

// Context is canceled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Close marks the session closed. It is idempotent.
func (s *Session) Close() { s.cancel() }

// Closed reports whether Close was called or the parent context ended.
func (s *Session) Closed() bool { return s.ctx.Err() != nil }
