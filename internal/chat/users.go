package chat

import (
	"context"
	"log/slog"

	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/pagination"
)

// RegisterUser creates a gateway account and its backend user, then adds the user to the
// default team. The account is rolled back when any backend step fails, and a backend
// user created before the failure is deactivated.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (identity.Identity, error) {
	in := admin.NewUser{Username: reg.Username, Password: reg.Password, Email: reg.Email}
	if err := admin.ValidateNewUser(in); err != nil {
		return identity.Anonymous, err
	}
	return s.accounts.Create(ctx, accounts.CreateAccountRequest(reg), func(id identity.Identity) error {
		ref, err := s.admin.CreateUser(ctx, admin.NewUser{
			Username: id.Username,
			Password: backend.DerivePassword(s.opts.PasswordSecret, id.Username),
			Email:    id.Email,
		})
		if err != nil {
			return err
		}
		if err := s.admin.AddUserToTeam(ctx, ref.ID, s.opts.DefaultTeam); err != nil {
			if !s.admin.TryDeactivateUser(ctx, ref.ID) {
				s.logger.Warn("backend user left active after failed registration", slog.String("user_id", ref.ID))
			}
			return err
		}
		return nil
	})
}

// ListUsers returns one page of gateway accounts.
func (s *Service) ListUsers(ctx context.Context, req pagination.Request) (pagination.Page[identity.Identity], error) {
	items, total, err := s.accounts.List(ctx, req)
	if err != nil {
		return pagination.Page[identity.Identity]{}, err
	}
	return pagination.Counted(items, total, req), nil
}
