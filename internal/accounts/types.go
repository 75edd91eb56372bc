package accounts

import (
	"context"
	"time"

	"github.com/memohai/chatgate/internal/identity"
)

// Account is a gateway account credential record.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitzero"`
}

// Identity projects the account to the identity attached to requests.
func (a Account) Identity() identity.Identity {
	return identity.Identity{ID: a.ID, Username: a.Username, Email: a.Email}
}

// CreateAccountRequest is the input for creating an account.
type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

//go:generate go run go.uber.org/mock/mockgen -source=types.go -destination=mock_repository_test.go -package=accounts

// Repository persists account records. Username lookups are case-insensitive.
type Repository interface {
	// GetByUsername returns apperr.NotFoundError when no account matches.
	GetByUsername(ctx context.Context, username string) (Account, error)
	// Insert stores account inside a transaction and runs commit before committing it.
	// A commit error rolls the insert back and is returned unchanged. A duplicate username
	// returns apperr.AlreadyExistsError.
	Insert(ctx context.Context, account Account, commit func() error) error
	// List returns accounts ordered by creation time plus the total count.
	List(ctx context.Context, limit, offset int) ([]Account, int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Close() error
}
