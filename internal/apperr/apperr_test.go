package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	assert.ErrorIs(t, Validation("password", "too short"), errdefs.ErrInvalidArgument)
	assert.ErrorIs(t, NotFound("team", "core"), errdefs.ErrNotFound)
	assert.ErrorIs(t, AlreadyExists("channel", "general"), errdefs.ErrAlreadyExists)
	assert.ErrorIs(t, ErrUnauthenticated, errdefs.ErrUnauthenticated)
	assert.ErrorIs(t, ErrUnauthorized, errdefs.ErrPermissionDenied)
	assert.ErrorIs(t, External("create_post", errors.New("boom")), errdefs.ErrUnavailable)
}

func TestExternalFlagsTimeout(t *testing.T) {
	err := External("get_users", fmt.Errorf("do request: %w", context.DeadlineExceeded))
	assert.True(t, err.Timeout)
	assert.True(t, IsTimeout(fmt.Errorf("list channels: %w", err)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := External("get_users", errors.New("connection refused"))
	assert.False(t, plain.Timeout)
	assert.False(t, IsTimeout(plain))
}

func TestExternalKeepsInnerError(t *testing.T) {
	inner := &ExternalServiceError{Op: "create_team", Status: 400}
	assert.Same(t, inner, External("outer", fmt.Errorf("wrapped: %w", inner)))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "invalid username: too short", Validation("username", "too short").Error())
	assert.Equal(t, `user "bob" not found`, NotFound("user", "bob").Error())
	assert.Equal(t, `team "core" already exists`, AlreadyExists("team", "core").Error())
}
