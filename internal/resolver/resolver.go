// Package resolver turns human-readable team, channel and user names into backend IDs.
//
// The backend list endpoints cannot look entities up by name, so every non-numeric
// identifier costs one fetch of the scoped listing followed by a linear scan. Results are
// never cached.
package resolver

import (
	"context"
	"log/slog"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/logger"
)

// Lister is the part of a backend session the resolver reads from.
type Lister interface {
	UserID() string
	GetUserTeams(ctx context.Context, userID string) ([]backend.Team, error)
	GetChannelsForUser(ctx context.Context, userID, teamID string) ([]backend.Channel, error)
	ListUsers(ctx context.Context) ([]backend.User, error)
}

// Kind is the type of entity an identifier names.
type Kind string

// Entity kinds.
const (
	KindTeam    Kind = "team"
	KindChannel Kind = "channel"
	KindUser    Kind = "user"
)

// Scope selects the listing an identifier is resolved against. Channels are scoped to a team.
type Scope struct {
	Kind   Kind
	TeamID string
}

// Team scopes resolution to the session user's teams.
func Team() Scope { return Scope{Kind: KindTeam} }

// Channel scopes resolution to the session user's channels in teamID.
func Channel(teamID string) Scope { return Scope{Kind: KindChannel, TeamID: teamID} }

// User scopes resolution to every user on the server.
func User() Scope { return Scope{Kind: KindUser} }

// Resolver resolves identifiers through one backend session.
type Resolver struct {
	src    Lister
	logger *slog.Logger
}

// New returns a Resolver reading through src.
func New(log *slog.Logger, src Lister) *Resolver {
	return &Resolver{src: src, logger: logger.Or(log).With(slog.String("component", "resolver"))}
}

// entry is the shape shared by every listing: an ID and the names it may be addressed by.
type entry struct {
	id    string
	names []string
}

// Resolve returns the backend ID named by identifier within scope. A bare numeric identifier
// is returned unchanged without contacting the backend.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, identifier string) (string, error) {
	if IsNumeric(identifier) {
		return identifier, nil
	}
	entries, err := r.list(ctx, scope)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.id == identifier {
			return e.id, nil
		}
		for _, name := range e.names {
			if name == identifier {
				return e.id, nil
			}
		}
	}
	r.logger.Debug("identifier not found", slog.String("kind", string(scope.Kind)), slog.String("identifier", identifier))
	return "", apperr.NotFound(string(scope.Kind), identifier)
}

// Team resolves a team identifier.
func (r *Resolver) Team(ctx context.Context, identifier string) (string, error) {
	return r.Resolve(ctx, Team(), identifier)
}

// Channel resolves a channel identifier inside teamID.
func (r *Resolver) Channel(ctx context.Context, teamID, identifier string) (string, error) {
	return r.Resolve(ctx, Channel(teamID), identifier)
}

// User resolves a user ID or username.
func (r *Resolver) User(ctx context.Context, identifier string) (string, error) {
	return r.Resolve(ctx, User(), identifier)
}

func (r *Resolver) list(ctx context.Context, scope Scope) ([]entry, error) {
	switch scope.Kind {
	case KindTeam:
		teams, err := r.src.GetUserTeams(ctx, r.src.UserID())
		if err != nil {
			return nil, err
		}
		out := make([]entry, 0, len(teams))
		for _, t := range teams {
			out = append(out, entry{id: t.ID, names: []string{t.Name}})
		}
		return out, nil
	case KindChannel:
		channels, err := r.src.GetChannelsForUser(ctx, r.src.UserID(), scope.TeamID)
		if err != nil {
			return nil, err
		}
		out := make([]entry, 0, len(channels))
		for _, c := range channels {
			out = append(out, entry{id: c.ID, names: []string{c.Name}})
		}
		return out, nil
	case KindUser:
		users, err := r.src.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]entry, 0, len(users))
		for _, u := range users {
			out = append(out, entry{id: u.ID, names: []string{u.Username}})
		}
		return out, nil
	default:
		return nil, apperr.Validation("kind", "unknown entity kind "+string(scope.Kind))
	}
}

// IsNumeric reports whether identifier is a non-empty string of ASCII digits.
func IsNumeric(identifier string) bool {
	if identifier == "" {
		return false
	}
	for i := 0; i < len(identifier); i++ {
		if identifier[i] < '0' || identifier[i] > '9' {
			return false
		}
	}
	return true
}
