package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListUsers returns every user on the server, walking all pages.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	return listAll[User](ctx, c, "list users", "/users")
}

// GetUser fetches one user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := c.get(ctx, "get user", "/users/"+url.PathEscape(userID), nil, &user)
	return user, err
}

// GetUserTeams lists the teams userID belongs to.
func (c *Client) GetUserTeams(ctx context.Context, userID string) ([]Team, error) {
	var teams []Team
	err := c.get(ctx, "get user teams", "/users/"+url.PathEscape(userID)+"/teams", nil, &teams)
	return teams, err
}

// ListTeams returns every team visible to the session.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	return listAll[Team](ctx, c, "list teams", "/teams")
}

// GetChannelsForUser lists the channels userID is a member of in teamID.
func (c *Client) GetChannelsForUser(ctx context.Context, userID, teamID string) ([]Channel, error) {
	var channels []Channel
	path := fmt.Sprintf("/users/%s/teams/%s/channels", url.PathEscape(userID), url.PathEscape(teamID))
	err := c.get(ctx, "get channels for user", path, nil, &channels)
	return channels, err
}

// GetPublicChannels lists every public channel of teamID.
func (c *Client) GetPublicChannels(ctx context.Context, teamID string) ([]Channel, error) {
	return listAll[Channel](ctx, c, "get public channels", "/teams/"+url.PathEscape(teamID)+"/channels")
}

// CreateUser registers a new backend account.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	var user User
	err := c.send(ctx, "create user", http.MethodPost, "/users", req, &user)
	return user, err
}

// CreateTeam creates an open team. The backend joins the session user to it.
func (c *Client) CreateTeam(ctx context.Context, name, displayName string) (Team, error) {
	var team Team
	err := c.send(ctx, "create team", http.MethodPost, "/teams",
		createTeamRequest{Name: name, DisplayName: displayName, Type: TypeOpen}, &team)
	return team, err
}

// CreateChannel creates an open channel in teamID. Nobody is joined to it.
func (c *Client) CreateChannel(ctx context.Context, teamID, name, displayName string) (Channel, error) {
	var channel Channel
	err := c.send(ctx, "create channel", http.MethodPost, "/channels",
		createChannelRequest{TeamID: teamID, Name: name, DisplayName: displayName, Type: TypeOpen}, &channel)
	return channel, err
}

// AddChannelMember adds userID to channelID.
func (c *Client) AddChannelMember(ctx context.Context, channelID, userID string) error {
	return c.send(ctx, "add channel member", http.MethodPost,
		"/channels/"+url.PathEscape(channelID)+"/members", channelMemberRequest{UserID: userID}, nil)
}

// RemoveChannelMember removes userID from channelID.
func (c *Client) RemoveChannelMember(ctx context.Context, channelID, userID string) error {
	path := fmt.Sprintf("/channels/%s/members/%s", url.PathEscape(channelID), url.PathEscape(userID))
	return c.send(ctx, "remove channel member", http.MethodDelete, path, nil, nil)
}

// AddTeamMember adds userID to teamID.
func (c *Client) AddTeamMember(ctx context.Context, teamID, userID string) error {
	return c.send(ctx, "add team member", http.MethodPost,
		"/teams/"+url.PathEscape(teamID)+"/members", teamMemberRequest{TeamID: teamID, UserID: userID}, nil)
}

// DeleteTeam permanently deletes teamID.
func (c *Client) DeleteTeam(ctx context.Context, teamID string) error {
	_, err := c.conn.do(ctx, "delete team", c.token, http.MethodDelete, "/teams/"+url.PathEscape(teamID),
		url.Values{"permanent": {"true"}}, nil, nil)
	return err
}

// DeleteChannel archives channelID.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	return c.send(ctx, "delete channel", http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil, nil)
}

// CreatePost writes message to channelID as the session user.
func (c *Client) CreatePost(ctx context.Context, channelID, message string) (Post, error) {
	var post Post
	err := c.send(ctx, "create post", http.MethodPost, "/posts",
		createPostRequest{ChannelID: channelID, Message: message}, &post)
	return post, err
}

// GetPostsForChannel fetches one page of channelID's posts. page is 0-indexed.
func (c *Client) GetPostsForChannel(ctx context.Context, channelID string, page, perPage int) (PostList, error) {
	var list PostList
	query := url.Values{
		"page":     {fmt.Sprint(page)},
		"per_page": {fmt.Sprint(perPage)},
	}
	err := c.get(ctx, "get posts for channel", "/channels/"+url.PathEscape(channelID)+"/posts", query, &list)
	return list, err
}

// DeactivateUser deactivates userID.
func (c *Client) DeactivateUser(ctx context.Context, userID string) error {
	return c.send(ctx, "deactivate user", http.MethodDelete, "/users/"+url.PathEscape(userID), nil, nil)
}

// UpdateUserActive sets the active flag of userID.
func (c *Client) UpdateUserActive(ctx context.Context, userID string, active bool) error {
	return c.send(ctx, "update user active", http.MethodPut,
		"/users/"+url.PathEscape(userID)+"/active", activeRequest{Active: active}, nil)
}
