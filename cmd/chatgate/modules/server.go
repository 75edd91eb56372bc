package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/boot"
	"github.com/memohai/chatgate/internal/handlers"
	"github.com/memohai/chatgate/internal/server"
	"github.com/memohai/chatgate/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideAuthHandler),
		provideServerHandler(handlers.NewUsersHandler),
		provideServerHandler(handlers.NewChannelsHandler),
		provideServerHandler(handlers.NewWSHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideAuthHandler(log *slog.Logger, store *accounts.Service, issuer *auth.Issuer) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, store, issuer)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	Authenticator  *auth.Authenticator
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.Authenticator, params.ServerHandlers...)
}

// startServer makes sure the default team exists, then serves until stopped.
func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	rc *boot.RuntimeConfig,
	ops *admin.Operations,
) {
	logger.Info("starting chatgate", slog.String("version", version.GetInfo()))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if ops.TryCreateJoinTeam(ctx, rc.DefaultTeam) {
				logger.Info("default team created", slog.String("team", rc.DefaultTeam))
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
