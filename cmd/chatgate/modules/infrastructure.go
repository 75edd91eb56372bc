// Package modules groups the fx providers of the gateway binary.
package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	dbembed "github.com/memohai/chatgate/db"
	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/boot"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/db"
	"github.com/memohai/chatgate/internal/logger"
)

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		provideAccountRepository,
	),
)

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideAccountRepository opens the configured account store and closes it on stop.
func provideAccountRepository(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (accounts.Repository, error) {
	ctx := context.Background()
	var repo accounts.Repository
	if cfg.Storage.UsesSQLite() {
		conn, err := db.OpenSQLite(ctx, cfg.Storage.SQLitePath, dbembed.SQLiteSchema)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("account store", slog.String("driver", "sqlite"), slog.String("path", cfg.Storage.SQLitePath))
		repo = accounts.NewSQLiteRepository(conn)
	} else {
		if err := db.Migrate(log, cfg.Postgres, db.MigrateUp); err != nil {
			return nil, err
		}
		pool, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		log.Info("account store", slog.String("driver", "postgres"), slog.String("host", cfg.Postgres.Host))
		repo = accounts.NewPostgresRepository(pool)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return repo.Close()
		},
	})
	return repo, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return pool, nil
}
