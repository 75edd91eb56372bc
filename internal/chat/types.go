package chat

import (
	"context"
	"time"

	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/message"
	"github.com/memohai/chatgate/internal/pagination"
	"github.com/memohai/chatgate/internal/resolver"
)

// UserBackend is a backend session bound to one end user.
type UserBackend interface {
	resolver.Lister
	Username() string
	GetPublicChannels(ctx context.Context, teamID string) ([]backend.Channel, error)
	GetPostsForChannel(ctx context.Context, channelID string, page, perPage int) (backend.PostList, error)
	CreatePost(ctx context.Context, channelID, message string) (backend.Post, error)
	AddChannelMember(ctx context.Context, channelID, userID string) error
	RemoveChannelMember(ctx context.Context, channelID, userID string) error
	Logout(ctx context.Context) error
}

// Sessions opens backend sessions for gateway identities.
type Sessions interface {
	For(ctx context.Context, id identity.Identity) (UserBackend, error)
}

// Accounts is the account store the chat service registers users in and checks channel
// members against.
type Accounts interface {
	Create(ctx context.Context, req accounts.CreateAccountRequest, commit func(identity.Identity) error) (identity.Identity, error)
	GetByUsername(ctx context.Context, username string) (identity.Identity, error)
	List(ctx context.Context, req pagination.Request) ([]identity.Identity, int, error)
}

// Options tunes the chat service.
type Options struct {
	// DefaultTeam is the team every channel operation runs in.
	DefaultTeam string
	// Location is the display time zone of message timestamps.
	Location *time.Location
	// Exclude is always excluded from channel listings, in addition to the caller's list.
	Exclude []string
	// SummaryConcurrency bounds the concurrent last-message fetches of one listing.
	SummaryConcurrency int
	// PasswordSecret derives the backend password of registered users.
	PasswordSecret string
}

// ChannelSummary is one entry of a channel listing.
type ChannelSummary struct {
	ID          string        `json:"channelId"`
	Name        string        `json:"channelName"`
	TeamName    string        `json:"teamName"`
	LastMessage *message.View `json:"lastMessage"`
}

// Registration is the input of RegisterUser.
type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}
