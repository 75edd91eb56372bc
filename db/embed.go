// Package db embeds the account store schema.
package db

import "embed"

// MigrationsFS holds the PostgreSQL migrations applied on start and by "chatgate migrate".
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// SQLiteSchema creates the account tables on SQLite. It is idempotent.
//
//go:embed sqlite/schema.sql
var SQLiteSchema string
