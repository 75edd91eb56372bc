package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/hub"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/message"
	"github.com/memohai/chatgate/internal/pagination"
)

// ListMessages returns one backend page of a channel's posts, newest first. The page
// markers come from the backend; no total is computed.
func (s *Service) ListMessages(ctx context.Context, id identity.Identity, channel string, req pagination.Request) (pagination.Page[message.View], error) {
	if err := req.Validate(); err != nil {
		return pagination.Page[message.View]{}, err
	}
	sc, release, err := s.begin(ctx, id)
	if err != nil {
		return pagination.Page[message.View]{}, err
	}
	defer release()
	channelID, err := sc.channel(ctx, channel)
	if err != nil {
		return pagination.Page[message.View]{}, err
	}
	list, err := sc.client.GetPostsForChannel(ctx, channelID, req.BackendPage(), req.Size)
	if err != nil {
		return pagination.Page[message.View]{}, err
	}
	msgs := lo.Map(list.Ordered(), func(p backend.Post, _ int) message.Message {
		return message.FromPost(p, "")
	})
	views, err := s.views(ctx, sc, msgs)
	if err != nil {
		return pagination.Page[message.View]{}, err
	}
	return pagination.Forward(views, list.PrevPostID, list.NextPostID), nil
}

// SendMessage posts body to channel as id and publishes the stored message to the
// channel's live subscribers. The sender is not subscribed by sending.
func (s *Service) SendMessage(ctx context.Context, id identity.Identity, channel, body string) (message.Message, error) {
	if strings.TrimSpace(body) == "" {
		return message.Message{}, apperr.Validation("textMessage", "is required")
	}
	sc, release, err := s.begin(ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	defer release()
	channelID, err := sc.channel(ctx, channel)
	if err != nil {
		return message.Message{}, err
	}
	post, err := sc.client.CreatePost(ctx, channelID, body)
	if err != nil {
		return message.Message{}, err
	}
	msg := message.FromPost(post, sc.client.Username())
	delivered := s.broker.Publish(channelID, msg)
	s.logger.Debug("message sent",
		slog.String("channel_id", channelID),
		slog.String("message_id", msg.ID),
		slog.Int("delivered", delivered),
	)
	return msg, nil
}

// Subscribe follows channel for session. Anonymous sessions are rejected before the
// channel is resolved; the subscription key is the channel's backend ID.
func (s *Service) Subscribe(ctx context.Context, session *hub.Session, channel string) (*hub.Subscription, error) {
	if session == nil || session.Identity().IsAnonymous() {
		return nil, apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(channel) == "" {
		return nil, apperr.Validation("channel", "is required")
	}
	sc, release, err := s.begin(ctx, session.Identity())
	if err != nil {
		return nil, err
	}
	defer release()
	channelID, err := sc.channel(ctx, channel)
	if err != nil {
		return nil, err
	}
	return s.broker.Subscribe(session, channelID)
}

// Unsubscribe ends every subscription session holds on channel.
func (s *Service) Unsubscribe(ctx context.Context, session *hub.Session, channel string) error {
	if session == nil || session.Identity().IsAnonymous() {
		return apperr.ErrUnauthenticated
	}
	sc, release, err := s.begin(ctx, session.Identity())
	if err != nil {
		return err
	}
	defer release()
	channelID, err := sc.channel(ctx, channel)
	if err != nil {
		return err
	}
	s.broker.Unsubscribe(session, channelID)
	return nil
}
