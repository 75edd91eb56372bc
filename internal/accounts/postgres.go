package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/db"
)

const accountColumns = "id::text, username, email, password_hash, is_active, created_at, last_login_at"

// PostgresRepository stores accounts in PostgreSQL. The schema is applied by
// "chatgate migrate up".
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository wraps an open pool. Close closes the pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE lower(username) = lower($1)", username)
	account, err := scanPgAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperr.NotFound("user", username)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, account Account, commit func() error) error {
	id, err := db.ParseUUID(account.ID)
	if err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, account.Username, account.Email, account.PasswordHash, account.IsActive, account.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.AlreadyExists("user", account.Username)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]Account, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM accounts").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	rows, err := r.pool.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at, username LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var items []Account
	for rows.Next() {
		account, err := scanPgAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		items = append(items, account)
	}
	return items, total, rows.Err()
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, "UPDATE accounts SET last_login_at = $2 WHERE id = $1", pgID, at)
	return err
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanPgAccount(row pgx.Row) (Account, error) {
	var (
		account   Account
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.IsActive, &account.CreatedAt, &lastLogin)
	if err != nil {
		return Account{}, err
	}
	account.LastLoginAt = db.TimeFromPg(lastLogin)
	return account, nil
}
