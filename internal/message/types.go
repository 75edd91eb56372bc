// Package message defines the chat message record shared by the chat service, the
// subscription hub and the transport layer.
package message

import (
	"time"

	"github.com/memohai/chatgate/internal/backend"
)

// Kinds with special presentation.
const (
	// KindJoinTeam is posted by the backend when a user joins a team.
	KindJoinTeam = "system_join_team"
	// KindDefault replaces an empty backend post type.
	KindDefault = "str"

	welcomeBody = "Welcome"
)

// Message is a post as stored by the backend. Body is never rewritten; see View.
type Message struct {
	ID             string
	ChannelID      string
	AuthorID       string
	AuthorUsername string
	Body           string
	CreatedAt      time.Time
	Kind           string
}

// FromPost builds a Message from a backend post, naming the author with username.
func FromPost(p backend.Post, username string) Message {
	kind := p.Type
	if kind == "" {
		kind = KindDefault
	}
	return Message{
		ID:             p.ID,
		ChannelID:      p.ChannelID,
		AuthorID:       p.UserID,
		AuthorUsername: username,
		Body:           p.Message,
		CreatedAt:      time.UnixMilli(p.CreateAt).UTC(),
		Kind:           kind,
	}
}

// View is the client-facing projection of a Message.
type View struct {
	ID             string `json:"id"`
	ChannelID      string `json:"channelId"`
	UserID         string `json:"userId"`
	AuthorUsername string `json:"username"`
	Body           string `json:"message"`
	CreatedAt      string `json:"createAt"`
	Kind           string `json:"type"`
}

// View projects m for display in loc. Join-team notices read "Welcome".
func (m Message) View(loc *time.Location) View {
	if loc == nil {
		loc = time.UTC
	}
	body := m.Body
	if m.Kind == KindJoinTeam {
		body = welcomeBody
	}
	return View{
		ID:             m.ID,
		ChannelID:      m.ChannelID,
		UserID:         m.AuthorID,
		AuthorUsername: m.AuthorUsername,
		Body:           body,
		CreatedAt:      m.CreatedAt.In(loc).Format(time.RFC3339Nano),
		Kind:           m.Kind,
	}
}
