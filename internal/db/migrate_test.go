package db

import (
	"bytes"
	"strings"
	"testing"

	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/logger"
)

func TestMigrateRejectsUnsupportedCommands(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "chatgate",
		Password: "secret",
		Database: "chatgate",
		SSLMode:  "disable",
	}
	for _, command := range []string{"invalid", "force", ""} {
		err := Migrate(nil, cfg, command)
		if err == nil {
			t.Fatalf("expected error for command %q", command)
		}
		if !strings.Contains(err.Error(), "unknown migrate command") {
			t.Fatalf("command %q: unexpected error %v", command, err)
		}
	}
}

func TestMigrationSourceReadsEmbeddedMigrations(t *testing.T) {
	src, err := migrationSource()
	if err != nil {
		t.Fatalf("migration source: %v", err)
	}
	defer src.Close()
	first, err := src.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first != 1 {
		t.Fatalf("first version = %d, want 1", first)
	}
	up, ident, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("read up: %v", err)
	}
	defer up.Close()
	if ident != "accounts" {
		t.Fatalf("identifier = %q, want accounts", ident)
	}
}

func TestMigrateLoggerWritesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	l := &migrateLogger{logger: logger.New(&buf, "debug", "text")}
	if !l.Verbose() {
		t.Fatal("expected verbose at debug level")
	}
	l.Printf("applied %d", 1)
	if !strings.Contains(buf.String(), "applied 1") {
		t.Fatalf("log output = %q", buf.String())
	}

	quiet := &migrateLogger{logger: logger.New(&buf, "info", "text")}
	if quiet.Verbose() {
		t.Fatal("expected non-verbose at info level")
	}
}
