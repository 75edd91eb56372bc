package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/pagination"
)

func newMockService(t *testing.T) (*Service, *MockRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := NewMockRepository(ctrl)
	svc := NewService(logger.Discard(), repo)
	svc.cost = bcrypt.MinCost
	return svc, repo
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	account := Account{ID: "id-1", Username: "alice", Email: "a@example.com", PasswordHash: hashed(t, "Secret-123!"), IsActive: true}

	t.Run("valid", func(t *testing.T) {
		svc, repo := newMockService(t)
		repo.EXPECT().GetByUsername(ctx, "alice").Return(account, nil)
		repo.EXPECT().TouchLastLogin(ctx, "id-1", gomock.Any()).Return(nil)

		id, err := svc.Authenticate(ctx, " alice ", "Secret-123!")
		require.NoError(t, err)
		assert.Equal(t, identity.Identity{ID: "id-1", Username: "alice", Email: "a@example.com"}, id)
	})

	t.Run("touch failure is not fatal", func(t *testing.T) {
		svc, repo := newMockService(t)
		repo.EXPECT().GetByUsername(ctx, "alice").Return(account, nil)
		repo.EXPECT().TouchLastLogin(ctx, "id-1", gomock.Any()).Return(errors.New("disk full"))

		_, err := svc.Authenticate(ctx, "alice", "Secret-123!")
		require.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, repo := newMockService(t)
		repo.EXPECT().GetByUsername(ctx, "alice").Return(account, nil)

		id, err := svc.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		assert.True(t, id.IsAnonymous())
		assert.ErrorIs(t, err, errdefs.ErrUnauthenticated)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, repo := newMockService(t)
		repo.EXPECT().GetByUsername(ctx, "bob").Return(Account{}, apperr.NotFound("user", "bob"))

		_, err := svc.Authenticate(ctx, "bob", "whatever")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive", func(t *testing.T) {
		svc, repo := newMockService(t)
		inactive := account
		inactive.IsActive = false
		repo.EXPECT().GetByUsername(ctx, "alice").Return(inactive, nil)

		_, err := svc.Authenticate(ctx, "alice", "Secret-123!")
		require.ErrorIs(t, err, ErrInactiveAccount)
	})

	t.Run("blank input skips the store", func(t *testing.T) {
		svc, _ := newMockService(t)
		_, err := svc.Authenticate(ctx, "  ", "x")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestCreateRunsCommitInsideInsert(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMockService(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var committed identity.Identity
	repo.EXPECT().Insert(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, account Account, commit func() error) error {
			assert.Equal(t, "carol", account.Username)
			assert.Equal(t, fixed, account.CreatedAt)
			assert.True(t, account.IsActive)
			require.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("Carol-Pass1!")))
			return commit()
		})

	id, err := svc.Create(ctx, CreateAccountRequest{Username: "carol", Password: "Carol-Pass1!", Email: "c@example.com"},
		func(id identity.Identity) error {
			committed = id
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, id, committed)
	assert.NotEmpty(t, id.ID)
}

func TestCreateReturnsCommitError(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMockService(t)
	boom := errors.New("backend down")
	repo.EXPECT().Insert(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ Account, commit func() error) error { return commit() })

	_, err := svc.Create(ctx, CreateAccountRequest{Username: "carol", Password: "x"},
		func(identity.Identity) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestCreateRequiresInput(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Create(context.Background(), CreateAccountRequest{Password: "x"}, nil)
	require.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	_, err = svc.Create(context.Background(), CreateAccountRequest{Username: "x"}, nil)
	require.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestListTranslatesPage(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMockService(t)
	repo.EXPECT().List(ctx, 10, 20).Return([]Account{{ID: "1", Username: "a"}}, 21, nil)

	items, total, err := svc.List(ctx, pagination.Request{Number: 3, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	assert.Equal(t, []identity.Identity{{ID: "1", Username: "a"}}, items)

	_, _, err = svc.List(ctx, pagination.Request{Number: 0, Size: 10})
	require.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMockService(t)
	repo.EXPECT().GetByUsername(ctx, "alice").Return(Account{ID: "1"}, nil)
	repo.EXPECT().GetByUsername(ctx, "bob").Return(Account{}, apperr.NotFound("user", "bob"))
	repo.EXPECT().GetByUsername(ctx, "err").Return(Account{}, errors.New("io"))

	ok, err := svc.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Exists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = svc.Exists(ctx, "err")
	require.Error(t, err)
}
