package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/chatgate/cmd/chatgate/modules"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/db"
	"github.com/memohai/chatgate/internal/logger"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fx.New(
		modules.InfraModule,
		modules.DomainModule,
		modules.ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

// runMigrate handles "chatgate migrate up|down|version" against PostgreSQL.
func runMigrate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chatgate migrate up|down|version")
	}
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.UsesSQLite() {
		return fmt.Errorf("migrations apply to postgres storage only; sqlite creates its schema on start")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return db.Migrate(logger.L, cfg.Postgres, args[0])
}
