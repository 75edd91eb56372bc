// Package backendtest provides an in-memory Mattermost API server for tests.
//
// It implements the subset of /api/v4 the gateway calls, with the same paging, membership
// and post-list marker semantics as the real server.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memohai/chatgate/internal/backend"
)

// Server is a fake Mattermost server. The zero value is not usable; call New.
type Server struct {
	mu             sync.Mutex
	seq            int
	users          []backend.User
	passwords      map[string]string
	inactive       map[string]bool
	teams          []backend.Team
	teamMembers    map[string]map[string]bool
	channels       []backend.Channel
	channelMembers map[string]map[string]bool
	posts          map[string][]backend.Post
	tokens         map[string]string
	calls          map[string]int
	failures       map[string]int
	now            func() time.Time
	mux            *http.ServeMux
}

// New returns an empty server.
func New() *Server {
	s := &Server{
		passwords:      map[string]string{},
		inactive:       map[string]bool{},
		teamMembers:    map[string]map[string]bool{},
		channelMembers: map[string]map[string]bool{},
		posts:          map[string][]backend.Post{},
		tokens:         map[string]string{},
		calls:          map[string]int{},
		failures:       map[string]int{},
		now:            time.Now,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Connector starts the server on a loopback listener and returns a connector pointed at it.
func (s *Server) Connector(t testing.TB) *backend.Connector {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	conn, err := backend.NewConnector(nil, backend.Options{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxInFlight: 8})
	if err != nil {
		t.Fatalf("backendtest: %v", err)
	}
	return conn
}

// Session returns a backend session for userID without a login round trip.
func (s *Server) Session(conn *backend.Connector, userID string) *backend.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.issueToken(userID)
	return conn.Session(token, userID, s.usernameLocked(userID))
}

// LiveSessions returns the number of session tokens not yet logged out.
func (s *Server) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// SetClock replaces the clock used to stamp posts.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Calls returns how many requests hit the route pattern, e.g. "GET /api/v4/users".
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// ResetCalls clears the request counters.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = map[string]int{}
}

// FailNext makes the next request on pattern fail with status.
func (s *Server) FailNext(pattern string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[pattern] = status
}

// AddUser creates a user directly.
func (s *Server) AddUser(username, email, password string) backend.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password)
}

// AddTeam creates a team with the given member IDs.
func (s *Server) AddTeam(name string, memberIDs ...string) backend.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	team := backend.Team{ID: s.nextID("t"), Name: name, DisplayName: name, Type: backend.TypeOpen}
	s.teams = append(s.teams, team)
	s.teamMembers[team.ID] = map[string]bool{}
	for _, id := range memberIDs {
		s.teamMembers[team.ID][id] = true
	}
	return team
}

// AddChannel creates a channel in teamID with the given member IDs.
func (s *Server) AddChannel(teamID, name, displayName string, memberIDs ...string) backend.Channel {
	return s.addChannel(backend.TypeOpen, teamID, name, displayName, memberIDs)
}

// AddPrivateChannel creates a private channel, visible only to its members.
func (s *Server) AddPrivateChannel(teamID, name, displayName string, memberIDs ...string) backend.Channel {
	return s.addChannel(backend.TypePrivate, teamID, name, displayName, memberIDs)
}

func (s *Server) addChannel(kind, teamID, name, displayName string, memberIDs []string) backend.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := backend.Channel{ID: s.nextID("c"), TeamID: teamID, Name: name, DisplayName: displayName, Type: kind}
	s.channels = append(s.channels, ch)
	s.channelMembers[ch.ID] = map[string]bool{}
	for _, id := range memberIDs {
		s.channelMembers[ch.ID][id] = true
	}
	return ch
}

// AddPost appends a post to channelID.
func (s *Server) AddPost(channelID, userID, message, postType string) backend.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPostLocked(channelID, userID, message, postType)
}

// ChannelMembers returns the member IDs of channelID, sorted.
func (s *Server) ChannelMembers(channelID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.channelMembers[channelID])
}

// TeamMembers returns the member IDs of teamID, sorted.
func (s *Server) TeamMembers(teamID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.teamMembers[teamID])
}

// UserByName returns the user called username.
func (s *Server) UserByName(username string) (backend.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return backend.User{}, false
}

// ChannelByName returns the channel called name in teamID.
func (s *Server) ChannelByName(teamID, name string) (backend.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c.TeamID == teamID && c.Name == name {
			return c, true
		}
	}
	return backend.Channel{}, false
}

// Active reports whether userID is active.
func (s *Server) Active(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inactive[userID]
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%025d", prefix, s.seq)
}

func (s *Server) issueToken(userID string) string {
	token := s.nextID("k")
	s.tokens[token] = userID
	return token
}

func (s *Server) usernameLocked(userID string) string {
	for _, u := range s.users {
		if u.ID == userID {
			return u.Username
		}
	}
	return ""
}

func (s *Server) addUserLocked(username, email, password string) backend.User {
	user := backend.User{ID: s.nextID("u"), Username: username, Email: email}
	s.users = append(s.users, user)
	s.passwords[user.ID] = password
	return user
}

func (s *Server) addPostLocked(channelID, userID, message, postType string) backend.Post {
	post := backend.Post{
		ID:        s.nextID("p"),
		ChannelID: channelID,
		UserID:    userID,
		Message:   message,
		Type:      postType,
		CreateAt:  s.now().UnixMilli(),
	}
	s.posts[channelID] = append(s.posts[channelID], post)
	return post
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, id, message string) {
	writeJSON(w, status, map[string]any{"id": id, "message": message, "status_code": status})
}

func ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func pageParams(r *http.Request, defaultPerPage int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage <= 0 {
		perPage = defaultPerPage
	}
	return max(page, 0), perPage
}

func pageOf[T any](items []T, page, perPage int) []T {
	start := page * perPage
	if start >= len(items) {
		return []T{}
	}
	return slices.Clone(items[start:min(start+perPage, len(items))])
}

func (s *Server) currentUser(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return "", false
	}
	id, ok := s.tokens[token]
	return id, ok
}
