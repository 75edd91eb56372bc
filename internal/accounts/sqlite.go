package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/db"
)

const (
	sqliteAccountColumns = "id, username, email, password_hash, is_active, created_at, last_login_at"
	// Fixed-width so that text order matches time order.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteRepository stores accounts in SQLite through the modernc driver. Timestamps are
// stored as RFC 3339 text in UTC.
type SQLiteRepository struct {
	conn *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository wraps a database opened with db.OpenSQLite. Close closes it.
func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	row := r.conn.QueryRowContext(ctx,
		"SELECT "+sqliteAccountColumns+" FROM accounts WHERE lower(username) = lower(?)", username)
	account, err := scanSQLiteAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, apperr.NotFound("user", username)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, account Account, commit func() error) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.IsActive, formatSQLiteTime(account.CreatedAt))
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
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit, offset int) ([]Account, int, error) {
	var total int
	if err := r.conn.QueryRowContext(ctx, "SELECT count(*) FROM accounts").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	rows, err := r.conn.QueryContext(ctx,
		"SELECT "+sqliteAccountColumns+" FROM accounts ORDER BY created_at, username LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var items []Account
	for rows.Next() {
		account, err := scanSQLiteAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		items = append(items, account)
	}
	return items, total, rows.Err()
}

func (r *SQLiteRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		"UPDATE accounts SET last_login_at = ? WHERE id = ?", formatSQLiteTime(at), id)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAccount(row rowScanner) (Account, error) {
	var (
		account   Account
		createdAt string
		lastLogin sql.NullString
	)
	err := row.Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.IsActive, &createdAt, &lastLogin)
	if err != nil {
		return Account{}, err
	}
	if account.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Account{}, fmt.Errorf("created_at: %w", err)
	}
	if lastLogin.Valid {
		if account.LastLoginAt, err = time.Parse(time.RFC3339Nano, lastLogin.String); err != nil {
			return Account{}, fmt.Errorf("last_login_at: %w", err)
		}
	}
	return account, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
