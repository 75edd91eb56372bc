// Package admin implements privileged backend mutations performed with the admin session.
//
// Every operation validates its input and resolves all identifiers before the first mutating
// call, so a failure never leaves a partial change behind. Each operation also has a Try
// form that reports success as a bool and logs the error instead of returning it.
package admin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/samber/lo"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/resolver"
)

// Backend is the admin session the operations run on.
type Backend interface {
	resolver.Lister
	ListTeams(ctx context.Context) ([]backend.Team, error)
	GetPublicChannels(ctx context.Context, teamID string) ([]backend.Channel, error)
	CreateUser(ctx context.Context, req backend.CreateUserRequest) (backend.User, error)
	CreateTeam(ctx context.Context, name, displayName string) (backend.Team, error)
	CreateChannel(ctx context.Context, teamID, name, displayName string) (backend.Channel, error)
	AddChannelMember(ctx context.Context, channelID, userID string) error
	AddTeamMember(ctx context.Context, teamID, userID string) error
	DeleteTeam(ctx context.Context, teamID string) error
	DeleteChannel(ctx context.Context, channelID string) error
	DeactivateUser(ctx context.Context, userID string) error
	UpdateUserActive(ctx context.Context, userID string, active bool) error
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Username string
	Password string
	Email    string
}

// Ref is the {id, name} pair returned by create and list operations.
type Ref struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ChannelRef is a channel listed within a team.
type ChannelRef struct {
	TeamName string `json:"teamName" yaml:"team"`
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
}

// Operations runs privileged mutations on one admin session.
type Operations struct {
	backend     Backend
	resolve     *resolver.Resolver
	defaultTeam string
	logger      *slog.Logger
}

// New returns Operations bound to the admin session b. Operations that take a team
// identifier fall back to defaultTeam when it is empty.
func New(log *slog.Logger, b Backend, defaultTeam string) *Operations {
	log = logger.Or(log).With(slog.String("service", "admin"))
	return &Operations{
		backend:     b,
		resolve:     resolver.New(log, b),
		defaultTeam: defaultTeam,
		logger:      log,
	}
}

func (o *Operations) team(identifier string) string {
	if strings.TrimSpace(identifier) == "" {
		return o.defaultTeam
	}
	return identifier
}

// CreateUser validates the password, username and email (in that order) and registers the
// account on the backend.
func (o *Operations) CreateUser(ctx context.Context, in NewUser) (Ref, error) {
	if err := ValidateNewUser(in); err != nil {
		return Ref{}, err
	}
	user, err := o.backend.CreateUser(ctx, backend.CreateUserRequest{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return Ref{}, err
	}
	o.logger.Info("user created", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return Ref{ID: user.ID, Name: user.Username}, nil
}

// CreateJoinTeam creates an open team. The backend joins the admin to it.
func (o *Operations) CreateJoinTeam(ctx context.Context, name string) (Ref, error) {
	if err := ValidateName("teamName", name); err != nil {
		return Ref{}, err
	}
	teams, err := o.backend.ListTeams(ctx)
	if err != nil {
		return Ref{}, err
	}
	if lo.ContainsBy(teams, func(t backend.Team) bool { return t.Name == name || t.ID == name }) {
		return Ref{}, apperr.AlreadyExists("team", name)
	}
	team, err := o.backend.CreateTeam(ctx, name, name)
	if err != nil {
		return Ref{}, err
	}
	o.logger.Info("team created", slog.String("team_id", team.ID), slog.String("name", team.Name))
	return Ref{ID: team.ID, Name: team.Name}, nil
}

// CreateJoinChannel creates an open channel in team. It joins nobody; callers add members
// with AddUserToChannel.
func (o *Operations) CreateJoinChannel(ctx context.Context, name, team string) (Ref, error) {
	if err := ValidateName("channelName", name); err != nil {
		return Ref{}, err
	}
	teamID, err := o.resolve.Team(ctx, o.team(team))
	if err != nil {
		return Ref{}, err
	}
	_, err = o.channel(ctx, teamID, name)
	switch {
	case err == nil:
		return Ref{}, apperr.AlreadyExists("channel", name)
	case !errdefs.IsNotFound(err):
		return Ref{}, err
	}
	channel, err := o.backend.CreateChannel(ctx, teamID, name, name)
	if err != nil {
		return Ref{}, err
	}
	o.logger.Info("channel created", slog.String("channel_id", channel.ID), slog.String("team_id", teamID))
	return Ref{ID: channel.ID, Name: channel.Name}, nil
}

// channel resolves a channel among the admin's own channels of teamID, then among its
// public channels, which the admin sees whether or not it is a member.
func (o *Operations) channel(ctx context.Context, teamID, identifier string) (string, error) {
	if resolver.IsNumeric(identifier) {
		return identifier, nil
	}
	match := func(c backend.Channel) bool {
		return c.ID == identifier || c.Name == identifier
	}
	joined, err := o.backend.GetChannelsForUser(ctx, o.backend.UserID(), teamID)
	if err != nil {
		return "", err
	}
	if found, ok := lo.Find(joined, match); ok {
		return found.ID, nil
	}
	public, err := o.backend.GetPublicChannels(ctx, teamID)
	if err != nil {
		return "", err
	}
	found, ok := lo.Find(public, match)
	if !ok {
		return "", apperr.NotFound(string(resolver.KindChannel), identifier)
	}
	return found.ID, nil
}

// AddUserToChannel resolves team, channel and user in that order, then adds the user.
func (o *Operations) AddUserToChannel(ctx context.Context, channel, user, team string) error {
	teamID, err := o.resolve.Team(ctx, o.team(team))
	if err != nil {
		return err
	}
	channelID, err := o.channel(ctx, teamID, channel)
	if err != nil {
		return err
	}
	userID, err := o.resolve.User(ctx, user)
	if err != nil {
		return err
	}
	return o.backend.AddChannelMember(ctx, channelID, userID)
}

// AddUserToTeam resolves team then user, then adds the user to the team.
func (o *Operations) AddUserToTeam(ctx context.Context, user, team string) error {
	teamID, err := o.resolve.Team(ctx, o.team(team))
	if err != nil {
		return err
	}
	userID, err := o.resolve.User(ctx, user)
	if err != nil {
		return err
	}
	return o.backend.AddTeamMember(ctx, teamID, userID)
}

// RemoveTeam permanently deletes a team.
func (o *Operations) RemoveTeam(ctx context.Context, team string) error {
	teamID, err := o.resolve.Team(ctx, team)
	if err != nil {
		return err
	}
	return o.backend.DeleteTeam(ctx, teamID)
}

// RemoveChannel deletes a channel of team.
func (o *Operations) RemoveChannel(ctx context.Context, channel, team string) error {
	teamID, err := o.resolve.Team(ctx, o.team(team))
	if err != nil {
		return err
	}
	channelID, err := o.channel(ctx, teamID, channel)
	if err != nil {
		return err
	}
	return o.backend.DeleteChannel(ctx, channelID)
}

// ActivateUser re-enables a deactivated user.
func (o *Operations) ActivateUser(ctx context.Context, user string) error {
	userID, err := o.resolve.User(ctx, user)
	if err != nil {
		return err
	}
	return o.backend.UpdateUserActive(ctx, userID, true)
}

// DeactivateUser disables a user.
func (o *Operations) DeactivateUser(ctx context.Context, user string) error {
	userID, err := o.resolve.User(ctx, user)
	if err != nil {
		return err
	}
	return o.backend.DeactivateUser(ctx, userID)
}

// ListTeams lists every team on the server.
func (o *Operations) ListTeams(ctx context.Context) ([]Ref, error) {
	teams, err := o.backend.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(teams, func(t backend.Team, _ int) Ref { return Ref{ID: t.ID, Name: t.Name} }), nil
}

// ListPublicChannels lists the public channels of team, skipping those without a display name.
func (o *Operations) ListPublicChannels(ctx context.Context, team string) ([]ChannelRef, error) {
	team = o.team(team)
	teamID, err := o.resolve.Team(ctx, team)
	if err != nil {
		return nil, err
	}
	channels, err := o.backend.GetPublicChannels(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(channels, func(c backend.Channel, _ int) (ChannelRef, bool) {
		return ChannelRef{TeamName: team, ID: c.ID, Name: c.Name}, c.DisplayName != ""
	}), nil
}
