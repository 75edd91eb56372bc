package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/boot"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/hub"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideConnector,
		provideAdminOperations,
		provideAccountService,
		provideHub,
		provideBroker,
		provideIssuer,
		provideAuthenticator,
		provideChatService,
	),
	fx.Invoke(startSweeper),
)

func provideConnector(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (*backend.Connector, error) {
	return backend.NewConnector(log, backend.Options{
		BaseURL:     rc.BackendURL,
		Timeout:     rc.BackendTimeout,
		RateLimit:   cfg.Backend.RateLimit,
		Burst:       cfg.Backend.Burst,
		MaxInFlight: cfg.Backend.MaxInFlight,
	})
}

// provideAdminOperations logs the admin account in. The gateway cannot serve without it.
func provideAdminOperations(log *slog.Logger, conn *backend.Connector, rc *boot.RuntimeConfig) (*admin.Operations, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.BackendTimeout)
	defer cancel()
	session, err := conn.Login(ctx, rc.BackendAdminLogin, rc.BackendAdminPassword)
	if err != nil {
		return nil, fmt.Errorf("backend admin login: %w", err)
	}
	log.Info("backend admin session opened", slog.String("username", session.Username()))
	return admin.New(log, session, rc.DefaultTeam), nil
}

func provideAccountService(log *slog.Logger, repo accounts.Repository) *accounts.Service {
	return accounts.NewService(log, repo)
}

func provideHub(log *slog.Logger, cfg config.Config) *hub.Hub {
	return hub.New(log, cfg.Hub.BufferSize)
}

func provideBroker(h *hub.Hub) hub.Broker { return h }

func provideIssuer(rc *boot.RuntimeConfig) (*auth.Issuer, error) {
	return auth.NewIssuer(rc.JwtSecret, rc.JwtExpiresIn, rc.RefreshExpiresIn)
}

func provideAuthenticator(log *slog.Logger, issuer *auth.Issuer, store *accounts.Service) *auth.Authenticator {
	return auth.NewAuthenticator(log, issuer, store)
}

func provideChatService(
	log *slog.Logger,
	cfg config.Config,
	rc *boot.RuntimeConfig,
	conn *backend.Connector,
	ops *admin.Operations,
	store *accounts.Service,
	broker hub.Broker,
) *chat.Service {
	return chat.NewService(log, chat.NewBackendSessions(conn, rc.BackendPasswordKey), ops, store, broker, chat.Options{
		DefaultTeam:        rc.DefaultTeam,
		Location:           rc.Location,
		Exclude:            cfg.Chat.ExcludeChannels,
		SummaryConcurrency: cfg.Chat.SummaryConcurrency,
		PasswordSecret:     rc.BackendPasswordKey,
	})
}

// startSweeper prunes subscriptions of dead sessions on the configured schedule.
func startSweeper(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, h *hub.Hub) error {
	sweeper, err := hub.NewSweeper(h, cfg.Hub.SweepSpec)
	if err != nil {
		return fmt.Errorf("hub sweeper: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweeper.Start()
			log.Info("hub sweeper started", slog.String("spec", cfg.Hub.SweepSpec))
			return nil
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
	return nil
}
