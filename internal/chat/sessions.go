package chat

import (
	"context"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/identity"
)

// BackendSessions logs gateway users into the backend with their derived password.
type BackendSessions struct {
	conn   *backend.Connector
	secret string
}

var _ Sessions = (*BackendSessions)(nil)

// NewBackendSessions returns Sessions backed by conn. secret must be the same secret the
// users were registered with.
func NewBackendSessions(conn *backend.Connector, secret string) *BackendSessions {
	return &BackendSessions{conn: conn, secret: secret}
}

// For opens a session for id. Anonymous identities are rejected without a backend call.
func (s *BackendSessions) For(ctx context.Context, id identity.Identity) (UserBackend, error) {
	if id.IsAnonymous() {
		return nil, apperr.ErrUnauthenticated
	}
	client, err := s.conn.Login(ctx, id.Username, backend.DerivePassword(s.secret, id.Username))
	if err != nil {
		return nil, err
	}
	return client, nil
}
