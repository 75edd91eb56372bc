// Package hub tracks which live sessions follow which channel and fans published messages
// out to them.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/message"
)

// DefaultBufferSize is the default per-subscription buffer.
const DefaultBufferSize = 64

// Reasons a subscription stream ends.
var (
	// ErrLagged ends a subscription whose buffer filled up.
	ErrLagged = errors.New("hub: subscriber lagged behind")
	// ErrSessionClosed ends a subscription whose session went away.
	ErrSessionClosed = errors.New("hub: session closed")
	// ErrUnsubscribed ends a subscription removed by Unsubscribe or Close.
	ErrUnsubscribed = errors.New("hub: unsubscribed")
)

// Broker is the publish/subscribe contract the chat service and transport depend on. Hub
// is the in-process implementation; a cross-process transport can stand in behind it.
type Broker interface {
	Subscribe(session *Session, key string) (*Subscription, error)
	Publish(key string, msg message.Message) int
	Unsubscribe(session *Session, key string)
	Leave(session *Session)
}

// Subscription is one session's stream of messages for one channel key.
type Subscription struct {
	id      string
	key     string
	session *Session
	ch      chan message.Message
	hub     *Hub

	// err is written under hub.mu before ch is closed.
	err error
}

// Key returns the channel key the subscription follows.
func (s *Subscription) Key() string { return s.key }

// Messages returns the stream. It is closed when the subscription ends.
func (s *Subscription) Messages() <-chan message.Message { return s.ch }

// Err reports why the stream ended. It is nil while the stream is open.
func (s *Subscription) Err() error {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return s.err
}

// Close removes this subscription only. It is idempotent.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s, ErrUnsubscribed)
}

// sessionEntry tracks the subscriptions of one session and the hook that cleans them up
// when the session closes.
type sessionEntry struct {
	subs map[string]*Subscription
	stop func() bool
}

// Hub is the in-process Broker. The zero value is not usable; call New.
type Hub struct {
	mu       sync.RWMutex
	keys     map[string]map[string]*Subscription
	sessions map[string]*sessionEntry
	buffer   int
	logger   *slog.Logger
}

var _ Broker = (*Hub)(nil)

// New creates an empty hub with the given per-subscription buffer size.
func New(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Hub{
		keys:     map[string]map[string]*Subscription{},
		sessions: map[string]*sessionEntry{},
		buffer:   buffer,
		logger:   logger.Or(log).With(slog.String("component", "hub")),
	}
}

// Subscribe registers session under key and returns a stream of messages published after
// this call. Anonymous sessions are rejected before anything else is checked.
func (h *Hub) Subscribe(session *Session, key string) (*Subscription, error) {
	if session == nil || session.Identity().IsAnonymous() {
		return nil, apperr.ErrUnauthenticated
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.Validation("channel", "is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if session.Closed() {
		return nil, ErrSessionClosed
	}
	sub := &Subscription{
		id:      uuid.NewString(),
		key:     key,
		session: session,
		ch:      make(chan message.Message, h.buffer),
		hub:     h,
	}
	subs, ok := h.keys[key]
	if !ok {
		subs = map[string]*Subscription{}
		h.keys[key] = subs
	}
	subs[sub.id] = sub

	entry, ok := h.sessions[session.ID()]
	if !ok {
		entry = &sessionEntry{subs: map[string]*Subscription{}}
		entry.stop = context.AfterFunc(session.Context(), func() { h.Leave(session) })
		h.sessions[session.ID()] = entry
	}
	entry.subs[sub.id] = sub

	h.logger.Debug("subscribed",
		slog.String("key", key),
		slog.String("session", session.ID()),
		slog.String("username", session.Identity().Username),
	)
	return sub, nil
}

// Publish delivers msg to every subscription registered under key at the time of the call
// and returns how many received it. Subscriptions of closed sessions are pruned and
// subscriptions with a full buffer are ended with ErrLagged; neither blocks the caller.
func (h *Hub) Publish(key string, msg message.Message) int {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, sub := range h.keys[key] {
		if sub.session.Closed() {
			h.removeLocked(sub, ErrSessionClosed)
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.logger.Warn("evicting lagging subscriber",
				slog.String("key", key),
				slog.String("session", sub.session.ID()),
			)
			h.removeLocked(sub, ErrLagged)
		}
	}
	return delivered
}

// Unsubscribe removes every subscription of session under key. It is idempotent.
func (h *Hub) Unsubscribe(session *Session, key string) {
	if session == nil {
		return
	}
	key = strings.TrimSpace(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.keys[key] {
		if sub.session == session {
			h.removeLocked(sub, ErrUnsubscribed)
		}
	}
}

// Leave removes every subscription of session. It is idempotent and runs automatically
// when the session closes.
func (h *Hub) Leave(session *Session) {
	if session == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.sessions[session.ID()]
	if !ok {
		return
	}
	reason := ErrUnsubscribed
	if session.Closed() {
		reason = ErrSessionClosed
	}
	for _, sub := range entry.subs {
		h.removeLocked(sub, reason)
	}
}

// Sweep prunes subscriptions whose session has closed and returns how many it removed.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for _, subs := range h.keys {
		for _, sub := range subs {
			if sub.session.Closed() {
				h.removeLocked(sub, ErrSessionClosed)
				removed++
			}
		}
	}
	if removed > 0 {
		h.logger.Debug("swept closed sessions", slog.Int("removed", removed))
	}
	return removed
}

// Subscribers returns the number of subscriptions under key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.keys[strings.TrimSpace(key)])
}

// Keys returns the number of channel keys with at least one subscription.
func (h *Hub) Keys() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.keys)
}

// removeLocked ends sub with reason and prunes empty keys and sessions. Caller holds h.mu.
func (h *Hub) removeLocked(sub *Subscription, reason error) {
	subs, ok := h.keys[sub.key]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.keys, sub.key)
	}
	if entry, ok := h.sessions[sub.session.ID()]; ok {
		delete(entry.subs, sub.id)
		if len(entry.subs) == 0 {
			entry.stop()
			delete(h.sessions, sub.session.ID())
		}
	}
	sub.err = reason
	close(sub.ch)
}
