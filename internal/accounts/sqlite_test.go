package accounts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dbembed "github.com/memohai/chatgate/db"
	"github.com/memohai/chatgate/internal/db"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/pagination"
)

func newSQLiteService(t *testing.T) *Service {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), db.MemoryPath, dbembed.SQLiteSchema)
	require.NoError(t, err)
	repo := NewSQLiteRepository(conn)
	t.Cleanup(func() { _ = repo.Close() })
	svc := NewService(logger.Discard(), repo)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestSQLiteCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)

	created, err := svc.Create(ctx, CreateAccountRequest{Username: "alice", Password: "Alice-Pass1!", Email: "a@example.com"}, nil)
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, "alice", "Alice-Pass1!")
	require.NoError(t, err)
	assert.Equal(t, created, id)

	_, err = svc.Authenticate(ctx, "alice", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "Alice-Pass1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSQLiteDuplicateIgnoresCase(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)

	_, err := svc.Create(ctx, CreateAccountRequest{Username: "alice", Password: "p"}, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateAccountRequest{Username: "ALICE", Password: "p"}, nil)
	require.ErrorIs(t, err, errdefs.ErrAlreadyExists)

	id, err := svc.GetByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Username)

	_, err = svc.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestSQLiteCommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)
	boom := errors.New("backend refused")

	_, err := svc.Create(ctx, CreateAccountRequest{Username: "carol", Password: "p"},
		func(identity.Identity) error { return boom })
	require.ErrorIs(t, err, boom)

	ok, err := svc.Exists(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, ok, "account must be rolled back")

	_, err = svc.Create(ctx, CreateAccountRequest{Username: "carol", Password: "p"}, nil)
	require.NoError(t, err)
}

func TestSQLiteListPagination(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)
	for i := range 12 {
		_, err := svc.Create(ctx, CreateAccountRequest{Username: fmt.Sprintf("user%02d", i), Password: "p"}, nil)
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, pagination.Request{Number: 2, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, items, 5)
	assert.Equal(t, "user05", items[0].Username)

	items, total, err = svc.List(ctx, pagination.Request{Number: 3, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Len(t, items, 2)

	page := pagination.Counted(items, total, pagination.Request{Number: 3, Size: 5})
	assert.False(t, page.HasNext)
	assert.Equal(t, 3, *page.TotalPages)
}

func TestSQLiteListPageNumberPastIntRange(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)
	for i := range 3 {
		_, err := svc.Create(ctx, CreateAccountRequest{Username: fmt.Sprintf("user%02d", i), Password: "p"}, nil)
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, pagination.Request{Number: 1 << 62, Size: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, items)
}
