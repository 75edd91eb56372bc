// Package chat implements the gateway's chat operations: channel and message listings,
// sending, membership changes, live subscriptions and user registration. Every call runs
// on the caller's own backend session; privileged changes go through the admin operations.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/hub"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/message"
	"github.com/memohai/chatgate/internal/resolver"
)

const logoutTimeout = 5 * time.Second

// Service orchestrates the chat operations.
type Service struct {
	sessions Sessions
	admin    *admin.Operations
	accounts Accounts
	broker   hub.Broker
	opts     Options
	logger   *slog.Logger
}

// NewService creates a chat service.
func NewService(log *slog.Logger, sessions Sessions, adminOps *admin.Operations, accounts Accounts, broker hub.Broker, opts Options) *Service {
	if strings.TrimSpace(opts.DefaultTeam) == "" {
		opts.DefaultTeam = config.DefaultTeam
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SummaryConcurrency <= 0 {
		opts.SummaryConcurrency = config.DefaultSummaryConcurrency
	}
	return &Service{
		sessions: sessions,
		admin:    adminOps,
		accounts: accounts,
		broker:   broker,
		opts:     opts,
		logger:   logger.Or(log).With(slog.String("service", "chat")),
	}
}

// View projects msg in the configured display time zone.
func (s *Service) View(msg message.Message) message.View {
	return msg.View(s.opts.Location)
}

// scope is one resolved user session inside the default team.
type scope struct {
	client  UserBackend
	resolve *resolver.Resolver
	teamID  string
}

// begin logs id into the backend and opens its scope. release logs the session out and
// must run once the scope is no longer used.
func (s *Service) begin(ctx context.Context, id identity.Identity) (scope, func(), error) {
	client, err := s.sessions.For(ctx, id)
	if err != nil {
		return scope{}, nil, err
	}
	release := func() {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		if err := client.Logout(logoutCtx); err != nil {
			s.logger.Warn("backend logout failed", slog.String("username", id.Username), slog.Any("error", err))
		}
	}
	sc, err := s.open(ctx, client)
	if err != nil {
		release()
		return scope{}, nil, err
	}
	return sc, release, nil
}

func (s *Service) open(ctx context.Context, client UserBackend) (scope, error) {
	res := resolver.New(s.logger, client)
	teamID, err := res.Team(ctx, s.opts.DefaultTeam)
	if err != nil {
		return scope{}, err
	}
	return scope{client: client, resolve: res, teamID: teamID}, nil
}

// channel resolves identifier among the channels the session user belongs to.
func (sc scope) channel(ctx context.Context, identifier string) (string, error) {
	return sc.resolve.Channel(ctx, sc.teamID, identifier)
}

// views formats posts with one username index fetch. An empty batch fetches nothing.
func (s *Service) views(ctx context.Context, sc scope, msgs []message.Message) ([]message.View, error) {
	out := make([]message.View, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}
	names, err := sc.resolve.Usernames(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		m.AuthorUsername = names.Lookup(m.AuthorID)
		out = append(out, s.View(m))
	}
	return out, nil
}
