package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"github.com/memohai/chatgate/internal/config"
)

// Open connects a PostgreSQL pool and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// OpenSQLite opens the SQLite database at path, creating its parent directory, and applies
// the embedded schema. The pool is limited to one connection.
func OpenSQLite(ctx context.Context, path, schema string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = config.DefaultSQLitePath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, stmt := range sqlitePragmas {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlite %q: %w", stmt, err)
		}
	}
	if strings.TrimSpace(schema) != "" {
		if _, err := conn.ExecContext(ctx, schema); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return conn, nil
}
