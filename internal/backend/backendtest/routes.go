package backendtest

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/memohai/chatgate/internal/backend"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

// handle registers fn under pattern. Requests are serialized under the server lock, counted,
// and rejected with 401 unless authenticated (login excepted).
func (s *Server) handle(pattern string, public bool, fn handlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls[pattern]++
		if status, ok := s.failures[pattern]; ok {
			delete(s.failures, pattern)
			writeError(w, status, "backendtest.injected", "injected failure")
			return
		}
		userID, ok := s.currentUser(r)
		if !ok && !public {
			writeError(w, http.StatusUnauthorized, "api.context.session_expired.app_error", "Invalid or expired session, please login again.")
			return
		}
		fn(w, r, userID)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "api.context.invalid_body_param.app_error", err.Error())
		return false
	}
	return true
}

func (s *Server) routes() {
	s.handle("POST /api/v4/users/login", true, s.login)
	s.handle("POST /api/v4/users/logout", false, s.logout)
	s.handle("GET /api/v4/users", false, s.listUsers)
	s.handle("POST /api/v4/users", true, s.createUser)
	s.handle("GET /api/v4/users/{id}", false, s.getUser)
	s.handle("DELETE /api/v4/users/{id}", false, s.deactivateUser)
	s.handle("PUT /api/v4/users/{id}/active", false, s.updateActive)
	s.handle("GET /api/v4/users/{id}/teams", false, s.userTeams)
	s.handle("GET /api/v4/users/{id}/teams/{team}/channels", false, s.userChannels)
	s.handle("GET /api/v4/teams", false, s.listTeams)
	s.handle("POST /api/v4/teams", false, s.createTeam)
	s.handle("DELETE /api/v4/teams/{id}", false, s.deleteTeam)
	s.handle("POST /api/v4/teams/{id}/members", false, s.addTeamMember)
	s.handle("GET /api/v4/teams/{id}/channels", false, s.publicChannels)
	s.handle("POST /api/v4/channels", false, s.createChannel)
	s.handle("DELETE /api/v4/channels/{id}", false, s.deleteChannel)
	s.handle("POST /api/v4/channels/{id}/members", false, s.addChannelMember)
	s.handle("DELETE /api/v4/channels/{id}/members/{user}", false, s.removeChannelMember)
	s.handle("GET /api/v4/channels/{id}/posts", false, s.channelPosts)
	s.handle("POST /api/v4/posts", false, s.createPost)
}

func (s *Server) findUser(loginID string) (backend.User, bool) {
	for _, u := range s.users {
		if u.ID == loginID || u.Username == loginID || u.Email == loginID {
			return u, true
		}
	}
	return backend.User{}, false
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		LoginID  string `json:"login_id"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	user, found := s.findUser(req.LoginID)
	if !found || s.passwords[user.ID] != req.Password || s.inactive[user.ID] {
		writeError(w, http.StatusUnauthorized, "api.user.login.invalid_credentials_email_username", "Enter a valid email or username and/or password.")
		return
	}
	w.Header().Set("Token", s.issueToken(user.ID))
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, _ string) {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	delete(s.tokens, token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, _ string) {
	page, perPage := pageParams(r, 60)
	writeJSON(w, http.StatusOK, pageOf(s.users, page, perPage))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ string) {
	var req backend.CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	if _, exists := s.findUser(req.Username); exists {
		writeError(w, http.StatusBadRequest, "app.user.save.username_exists.app_error", "An account with that username already exists.")
		return
	}
	writeJSON(w, http.StatusCreated, s.addUserLocked(req.Username, req.Email, req.Password))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, _ string) {
	user, found := s.findUser(r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "app.user.missing_account.const", "Unable to find the user.")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request, _ string) {
	user, found := s.findUser(r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "app.user.missing_account.const", "Unable to find the user.")
		return
	}
	s.inactive[user.ID] = true
	ok(w)
}

func (s *Server) updateActive(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		Active bool `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	user, found := s.findUser(r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "app.user.missing_account.const", "Unable to find the user.")
		return
	}
	s.inactive[user.ID] = !req.Active
	ok(w)
}

func (s *Server) userTeams(w http.ResponseWriter, r *http.Request, _ string) {
	uid := r.PathValue("id")
	teams := []backend.Team{}
	for _, t := range s.teams {
		if s.teamMembers[t.ID][uid] {
			teams = append(teams, t)
		}
	}
	writeJSON(w, http.StatusOK, teams)
}

func (s *Server) userChannels(w http.ResponseWriter, r *http.Request, _ string) {
	uid, teamID := r.PathValue("id"), r.PathValue("team")
	channels := []backend.Channel{}
	for _, c := range s.channels {
		if c.TeamID == teamID && s.channelMembers[c.ID][uid] {
			channels = append(channels, c)
		}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request, _ string) {
	page, perPage := pageParams(r, 60)
	writeJSON(w, http.StatusOK, pageOf(s.teams, page, perPage))
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request, userID string) {
	var req backend.Team
	if !decode(w, r, &req) {
		return
	}
	if slices.ContainsFunc(s.teams, func(t backend.Team) bool { return t.Name == req.Name }) {
		writeError(w, http.StatusBadRequest, "store.sql_team.save_team.existing.app_error", "A team with that name already exists")
		return
	}
	team := backend.Team{ID: s.nextID("t"), Name: req.Name, DisplayName: req.DisplayName, Type: req.Type}
	s.teams = append(s.teams, team)
	s.teamMembers[team.ID] = map[string]bool{userID: true}
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) teamIndex(id string) int {
	return slices.IndexFunc(s.teams, func(t backend.Team) bool { return t.ID == id })
}

func (s *Server) deleteTeam(w http.ResponseWriter, r *http.Request, _ string) {
	i := s.teamIndex(r.PathValue("id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "app.team.get.find.app_error", "Unable to find the existing team.")
		return
	}
	delete(s.teamMembers, s.teams[i].ID)
	s.teams = slices.Delete(s.teams, i, i+1)
	ok(w)
}

func (s *Server) addTeamMember(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		TeamID string `json:"team_id"`
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	teamID := r.PathValue("id")
	if s.teamIndex(teamID) < 0 {
		writeError(w, http.StatusNotFound, "app.team.get.find.app_error", "Unable to find the existing team.")
		return
	}
	if _, found := s.findUser(req.UserID); !found {
		writeError(w, http.StatusNotFound, "app.user.missing_account.const", "Unable to find the user.")
		return
	}
	s.teamMembers[teamID][req.UserID] = true
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) publicChannels(w http.ResponseWriter, r *http.Request, _ string) {
	teamID := r.PathValue("id")
	var channels []backend.Channel
	for _, c := range s.channels {
		if c.TeamID == teamID && c.Type == backend.TypeOpen {
			channels = append(channels, c)
		}
	}
	page, perPage := pageParams(r, 60)
	writeJSON(w, http.StatusOK, pageOf(channels, page, perPage))
}

func (s *Server) channelIndex(id string) int {
	return slices.IndexFunc(s.channels, func(c backend.Channel) bool { return c.ID == id })
}

// createChannel does not add the creator as a member.
func (s *Server) createChannel(w http.ResponseWriter, r *http.Request, _ string) {
	var req backend.Channel
	if !decode(w, r, &req) {
		return
	}
	if s.teamIndex(req.TeamID) < 0 {
		writeError(w, http.StatusNotFound, "app.team.get.find.app_error", "Unable to find the existing team.")
		return
	}
	if slices.ContainsFunc(s.channels, func(c backend.Channel) bool { return c.TeamID == req.TeamID && c.Name == req.Name }) {
		writeError(w, http.StatusBadRequest, "store.sql_channel.save_channel.exists.app_error", "A channel with that name already exists on the same team")
		return
	}
	ch := backend.Channel{ID: s.nextID("c"), TeamID: req.TeamID, Name: req.Name, DisplayName: req.DisplayName, Type: req.Type}
	s.channels = append(s.channels, ch)
	s.channelMembers[ch.ID] = map[string]bool{}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request, _ string) {
	i := s.channelIndex(r.PathValue("id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "app.channel.get.existing.app_error", "Unable to find the existing channel.")
		return
	}
	delete(s.channelMembers, s.channels[i].ID)
	s.channels = slices.Delete(s.channels, i, i+1)
	ok(w)
}

func (s *Server) addChannelMember(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	channelID := r.PathValue("id")
	if s.channelIndex(channelID) < 0 {
		writeError(w, http.StatusNotFound, "app.channel.get.existing.app_error", "Unable to find the existing channel.")
		return
	}
	if _, found := s.findUser(req.UserID); !found {
		writeError(w, http.StatusNotFound, "app.user.missing_account.const", "Unable to find the user.")
		return
	}
	s.channelMembers[channelID][req.UserID] = true
	writeJSON(w, http.StatusCreated, map[string]string{"channel_id": channelID, "user_id": req.UserID})
}

func (s *Server) removeChannelMember(w http.ResponseWriter, r *http.Request, _ string) {
	channelID := r.PathValue("id")
	if s.channelIndex(channelID) < 0 {
		writeError(w, http.StatusNotFound, "app.channel.get.existing.app_error", "Unable to find the existing channel.")
		return
	}
	delete(s.channelMembers[channelID], r.PathValue("user"))
	ok(w)
}

// channelPosts lists posts newest first. next_post_id names the newer neighbour of the page
// and prev_post_id the older one, as the real server does.
func (s *Server) channelPosts(w http.ResponseWriter, r *http.Request, _ string) {
	channelID := r.PathValue("id")
	if s.channelIndex(channelID) < 0 {
		writeError(w, http.StatusNotFound, "app.channel.get.existing.app_error", "Unable to find the existing channel.")
		return
	}
	newest := slices.Clone(s.posts[channelID])
	slices.Reverse(newest)
	page, perPage := pageParams(r, 60)
	items := pageOf(newest, page, perPage)

	list := backend.PostList{Order: []string{}, Posts: map[string]backend.Post{}}
	for _, p := range items {
		list.Order = append(list.Order, p.ID)
		list.Posts[p.ID] = p
	}
	start := page * perPage
	if start > 0 && start-1 < len(newest) {
		list.NextPostID = newest[start-1].ID
	}
	if end := start + perPage; end < len(newest) {
		list.PrevPostID = newest[end].ID
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		ChannelID string `json:"channel_id"`
		Message   string `json:"message"`
	}
	if !decode(w, r, &req) {
		return
	}
	if s.channelIndex(req.ChannelID) < 0 {
		writeError(w, http.StatusNotFound, "app.channel.get.existing.app_error", "Unable to find the existing channel.")
		return
	}
	if !s.channelMembers[req.ChannelID][userID] {
		writeError(w, http.StatusForbidden, "api.context.permissions.app_error", "You do not have the appropriate permissions.")
		return
	}
	writeJSON(w, http.StatusCreated, s.addPostLocked(req.ChannelID, userID, req.Message, ""))
}
