// Package accounts provides gateway account and credential management.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/pagination"
)

// Errors returned by account operations. Both wrap apperr.ErrUnauthenticated.
var (
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthenticated)
	ErrInactiveAccount    = fmt.Errorf("account is inactive: %w", apperr.ErrUnauthenticated)
)

// Service provides account management on top of a Repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	cost   int
}

// NewService creates a new accounts service.
func NewService(log *slog.Logger, repo Repository) *Service {
	return &Service{
		repo:   repo,
		logger: logger.Or(log).With(slog.String("service", "accounts")),
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
}

// Authenticate checks username and password and returns the account identity.
func (s *Service) Authenticate(ctx context.Context, username, password string) (identity.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return identity.Anonymous, ErrInvalidCredentials
	}
	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return identity.Anonymous, ErrInvalidCredentials
		}
		return identity.Anonymous, err
	}
	if !account.IsActive {
		return identity.Anonymous, ErrInactiveAccount
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return identity.Anonymous, ErrInvalidCredentials
	}
	if err := s.repo.TouchLastLogin(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("touch last login failed", slog.String("username", account.Username), slog.Any("error", err))
	}
	return account.Identity(), nil
}

// Create stores a new account and runs commit with its identity before the transaction
// commits. When commit fails the account is rolled back and the error returned.
func (s *Service) Create(ctx context.Context, req CreateAccountRequest, commit func(identity.Identity) error) (identity.Identity, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return identity.Anonymous, apperr.Validation("username", "is required")
	}
	if req.Password == "" {
		return identity.Anonymous, apperr.Validation("password", "is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return identity.Anonymous, fmt.Errorf("hash password: %w", err)
	}
	account := Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hashed),
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	id := account.Identity()
	hook := func() error {
		if commit == nil {
			return nil
		}
		return commit(id)
	}
	if err := s.repo.Insert(ctx, account, hook); err != nil {
		return identity.Anonymous, err
	}
	s.logger.Info("account created", slog.String("username", username))
	return id, nil
}

// GetByUsername returns the identity of the account named username, ignoring case.
func (s *Service) GetByUsername(ctx context.Context, username string) (identity.Identity, error) {
	account, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return identity.Anonymous, err
	}
	if !account.IsActive {
		return identity.Anonymous, ErrInactiveAccount
	}
	return account.Identity(), nil
}

// Exists reports whether an account named username exists, ignoring case.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	switch {
	case err == nil:
		return true, nil
	case errdefs.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// List returns one page of account identities and the total account count.
func (s *Service) List(ctx context.Context, req pagination.Request) ([]identity.Identity, int, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	rows, total, err := s.repo.List(ctx, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	items := make([]identity.Identity, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Identity())
	}
	return items, total, nil
}
