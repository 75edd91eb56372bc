package admin

import (
	"context"
	"log/slog"
)

// swallow logs err at debug level and reports whether the operation succeeded.
func (o *Operations) swallow(op string, err error) bool {
	if err != nil {
		o.logger.Debug("admin operation failed", slog.String("op", op), slog.Any("error", err))
		return false
	}
	return true
}

// TryCreateUser is CreateUser reporting success as a bool.
func (o *Operations) TryCreateUser(ctx context.Context, in NewUser) bool {
	_, err := o.CreateUser(ctx, in)
	return o.swallow("create user", err)
}

// TryCreateJoinTeam is CreateJoinTeam reporting success as a bool.
func (o *Operations) TryCreateJoinTeam(ctx context.Context, name string) bool {
	_, err := o.CreateJoinTeam(ctx, name)
	return o.swallow("create team", err)
}

// TryCreateJoinChannel is CreateJoinChannel reporting success as a bool.
func (o *Operations) TryCreateJoinChannel(ctx context.Context, name, team string) bool {
	_, err := o.CreateJoinChannel(ctx, name, team)
	return o.swallow("create channel", err)
}

// TryAddUserToChannel is AddUserToChannel reporting success as a bool.
func (o *Operations) TryAddUserToChannel(ctx context.Context, channel, user, team string) bool {
	return o.swallow("add user to channel", o.AddUserToChannel(ctx, channel, user, team))
}

// TryAddUserToTeam is AddUserToTeam reporting success as a bool.
func (o *Operations) TryAddUserToTeam(ctx context.Context, user, team string) bool {
	return o.swallow("add user to team", o.AddUserToTeam(ctx, user, team))
}

// TryRemoveTeam is RemoveTeam reporting success as a bool.
func (o *Operations) TryRemoveTeam(ctx context.Context, team string) bool {
	return o.swallow("remove team", o.RemoveTeam(ctx, team))
}

// TryRemoveChannel is RemoveChannel reporting success as a bool.
func (o *Operations) TryRemoveChannel(ctx context.Context, channel, team string) bool {
	return o.swallow("remove channel", o.RemoveChannel(ctx, channel, team))
}

// TryActivateUser is ActivateUser reporting success as a bool.
func (o *Operations) TryActivateUser(ctx context.Context, user string) bool {
	return o.swallow("activate user", o.ActivateUser(ctx, user))
}

// TryDeactivateUser is DeactivateUser reporting success as a bool.
func (o *Operations) TryDeactivateUser(ctx context.Context, user string) bool {
	return o.swallow("deactivate user", o.DeactivateUser(ctx, user))
}
