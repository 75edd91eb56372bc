package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/message"
	"github.com/memohai/chatgate/internal/pagination"
	"github.com/memohai/chatgate/internal/resolver"
)

// ListChannels lists the channels id belongs to in the default team, skipping channels
// without a display name and those whose name contains an excluded substring. Each entry
// on the requested page carries the channel's most recent message.
func (s *Service) ListChannels(ctx context.Context, id identity.Identity, req pagination.Request, exclude []string) (pagination.Page[ChannelSummary], error) {
	if err := req.Validate(); err != nil {
		return pagination.Page[ChannelSummary]{}, err
	}
	sc, release, err := s.begin(ctx, id)
	if err != nil {
		return pagination.Page[ChannelSummary]{}, err
	}
	defer release()
	channels, err := sc.client.GetChannelsForUser(ctx, sc.client.UserID(), sc.teamID)
	if err != nil {
		return pagination.Page[ChannelSummary]{}, err
	}
	filtered := pagination.Filter(channels, append(lo.Compact(s.opts.Exclude), exclude...),
		func(c backend.Channel) string { return c.Name },
		func(c backend.Channel) string { return c.DisplayName },
	)
	page, err := pagination.Slice(filtered, req)
	if err != nil {
		return pagination.Page[ChannelSummary]{}, err
	}
	out := pagination.Map(page, func(c backend.Channel) ChannelSummary {
		return ChannelSummary{ID: c.ID, Name: c.Name, TeamName: s.opts.DefaultTeam}
	})
	if err := s.summarize(ctx, sc, out.Items); err != nil {
		return pagination.Page[ChannelSummary]{}, err
	}
	return out, nil
}

// summarize fills LastMessage of every item, fetching at most SummaryConcurrency channels
// at a time.
func (s *Service) summarize(ctx context.Context, sc scope, items []ChannelSummary) error {
	if len(items) == 0 {
		return nil
	}
	latest := make([]*message.Message, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SummaryConcurrency)
	for i := range items {
		g.Go(func() error {
			list, err := sc.client.GetPostsForChannel(gctx, items[i].ID, 0, 1)
			if err != nil {
				return err
			}
			if posts := list.Ordered(); len(posts) > 0 {
				msg := message.FromPost(posts[0], "")
				latest[i] = &msg
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	msgs := lo.FilterMap(latest, func(m *message.Message, _ int) (message.Message, bool) {
		if m == nil {
			return message.Message{}, false
		}
		return *m, true
	})
	views, err := s.views(ctx, sc, msgs)
	if err != nil {
		return err
	}
	next := 0
	for i, m := range latest {
		if m == nil {
			continue
		}
		items[i].LastMessage = &views[next]
		next++
	}
	return nil
}

// CreateChannel creates channel name in the default team and adds every member and the
// creator to it. Members are usernames of existing gateway accounts, matched ignoring case.
func (s *Service) CreateChannel(ctx context.Context, creator identity.Identity, name string, members []string) (admin.Ref, error) {
	if creator.IsAnonymous() {
		return admin.Ref{}, apperr.ErrUnauthenticated
	}
	usernames := make([]string, 0, len(members)+1)
	for _, member := range members {
		account, err := s.accounts.GetByUsername(ctx, member)
		if err != nil {
			if errdefs.IsNotFound(err) || errors.Is(err, accounts.ErrInactiveAccount) {
				return admin.Ref{}, apperr.Validation("members", "member "+strings.TrimSpace(member)+" is not a valid user")
			}
			return admin.Ref{}, err
		}
		usernames = append(usernames, account.Username)
	}
	usernames = lo.Uniq(append(usernames, creator.Username))

	ref, err := s.admin.CreateJoinChannel(ctx, name, s.opts.DefaultTeam)
	if err != nil {
		return admin.Ref{}, err
	}
	for _, username := range usernames {
		if err := s.admin.AddUserToChannel(ctx, ref.ID, username, s.opts.DefaultTeam); err != nil {
			return admin.Ref{}, err
		}
	}
	s.logger.Info("channel created",
		slog.String("channel_id", ref.ID),
		slog.String("creator", creator.Username),
		slog.Int("members", len(usernames)),
	)
	return ref, nil
}

// JoinChannel adds id to a public channel of the default team.
func (s *Service) JoinChannel(ctx context.Context, id identity.Identity, channel string) error {
	sc, release, err := s.begin(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	channelID := channel
	if !resolver.IsNumeric(channel) {
		public, err := sc.client.GetPublicChannels(ctx, sc.teamID)
		if err != nil {
			return err
		}
		found, ok := lo.Find(public, func(c backend.Channel) bool { return c.ID == channel || c.Name == channel })
		if !ok {
			return apperr.NotFound(string(resolver.KindChannel), channel)
		}
		channelID = found.ID
	}
	return sc.client.AddChannelMember(ctx, channelID, sc.client.UserID())
}

// LeaveChannel removes id from one of its channels.
func (s *Service) LeaveChannel(ctx context.Context, id identity.Identity, channel string) error {
	sc, release, err := s.begin(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	channelID, err := sc.channel(ctx, channel)
	if err != nil {
		return err
	}
	return sc.client.RemoveChannelMember(ctx, channelID, sc.client.UserID())
}
