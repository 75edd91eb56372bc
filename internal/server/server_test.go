package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbembed "github.com/memohai/chatgate/db"
	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/backend/backendtest"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/db"
	"github.com/memohai/chatgate/internal/handlers"
	"github.com/memohai/chatgate/internal/hub"
	"github.com/memohai/chatgate/internal/logger"
)

const secret = "server-test-secret"

type envelope struct {
	Status       string         `json:"status"`
	StatusCode   int            `json:"statusCode"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata"`
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
}

type fixture struct {
	srv     *backendtest.Server
	echo    *echo.Echo
	hub     *hub.Hub
	teamID  string
	adminID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := backendtest.New()
	adminUser := srv.AddUser("admin", "admin@example.com", "Admin-Pass1!")
	team := srv.AddTeam("main", adminUser.ID)
	conn := srv.Connector(t)

	sqlite, err := db.OpenSQLite(context.Background(), db.MemoryPath, dbembed.SQLiteSchema)
	require.NoError(t, err)
	repo := accounts.NewSQLiteRepository(sqlite)
	t.Cleanup(func() { _ = repo.Close() })
	store := accounts.NewService(logger.Discard(), repo)

	h := hub.New(logger.Discard(), 8)
	ops := admin.New(logger.Discard(), srv.Session(conn, adminUser.ID), "main")
	svc := chat.NewService(logger.Discard(), chat.NewBackendSessions(conn, secret), ops, store, h, chat.Options{
		DefaultTeam:    "main",
		Location:       time.UTC,
		PasswordSecret: secret,
	})
	issuer, err := auth.NewIssuer(secret, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(logger.Discard(), issuer, store)

	s := NewServer(logger.Discard(), "", authn,
		handlers.NewPingHandler(logger.Discard()),
		handlers.NewAuthHandler(logger.Discard(), store, issuer),
		handlers.NewUsersHandler(logger.Discard(), svc),
		handlers.NewChannelsHandler(logger.Discard(), svc),
		handlers.NewWSHandler(logger.Discard(), authn, svc),
	)
	return fixture{srv: srv, echo: s.Echo(), hub: h, teamID: team.ID, adminID: adminUser.ID}
}

func (f fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, auth.Scheme+" "+token)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.StatusCode, "statusCode mirrors the HTTP status")
	return env
}

func (f fixture) register(t *testing.T, username string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/users", "", chat.Registration{
		Username: username,
		Password: "Strong-Pass1!",
		Email:    username + "@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f fixture) login(t *testing.T, username string) envelope {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/token", "", handlers.TokenRequest{Username: username, Password: "Strong-Pass1!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeEnvelope(t, rec)
}

func TestPingIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/ping", "", nil)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "OK", env.Status)
	assert.Equal(t, "pong", env.Message)
	assert.NotEmpty(t, env.Metadata["version"])

	rec = f.do(t, http.MethodHead, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/users", "/channels", "/channels/general/messages"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, http.StatusUnauthorized, env.StatusCode, path)
		assert.Equal(t, "UNAUTHORIZED", env.Status, path)
	}
	rec := f.do(t, http.MethodGet, "/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	rec := f.do(t, http.MethodPost, "/users", "", chat.Registration{Username: "alice", Password: "Strong-Pass1!", Email: "other@example.com"})
	assert.Equal(t, http.StatusConflict, decodeEnvelope(t, rec).StatusCode)

	rec = f.do(t, http.MethodPost, "/users", "", chat.Registration{Username: "bob", Password: "weak", Email: "bob@example.com"})
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "BAD_REQUEST", env.Status)
	assert.Contains(t, env.Message, "password")

	rec = f.do(t, http.MethodPost, "/auth/token", "", handlers.TokenRequest{Username: "alice", Password: "Wrong-Pass1!"})
	env = decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
	assert.Equal(t, "Login Failed!", env.Message)
	assert.Empty(t, env.Token)

	env = f.login(t, "ALICE")
	assert.Equal(t, "Login Successfully!", env.Message)
	assert.Equal(t, "alice", env.Metadata["username"])
	assert.Equal(t, "alice@example.com", env.Metadata["email"])
	assert.NotEmpty(t, env.Token)
	assert.NotEmpty(t, env.RefreshToken)

	rec = f.do(t, http.MethodGet, "/users", env.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data  []map[string]any `json:"data"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "alice", page.Data[0]["username"])
}

func TestRefreshAndVerify(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	pair := f.login(t, "alice")

	rec := f.do(t, http.MethodPost, "/auth/token/refresh", "", handlers.RefreshRequest{RefreshToken: pair.RefreshToken})
	refreshed := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, refreshed.StatusCode)
	assert.NotEmpty(t, refreshed.Token)

	rec = f.do(t, http.MethodPost, "/auth/token/refresh", "", handlers.RefreshRequest{RefreshToken: pair.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/token/verify", "", handlers.VerifyRequest{Token: refreshed.Token})
	env := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, "alice", env.Metadata["username"])

	rec = f.do(t, http.MethodPost, "/auth/token/verify", "", handlers.VerifyRequest{Token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChannelFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.register(t, "bob")
	alice := f.login(t, "alice").Token
	bob := f.login(t, "bob").Token

	rec := f.do(t, http.MethodPost, "/channels", alice, handlers.CreateChannelRequest{ChannelName: "general", Members: []string{"ghost"}})
	assert.Equal(t, http.StatusBadRequest, decodeEnvelope(t, rec).StatusCode)

	rec = f.do(t, http.MethodPost, "/channels", alice, handlers.CreateChannelRequest{ChannelName: "general"})
	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.StatusCode, rec.Body.String())
	channelID, _ := env.Metadata["channel_id"].(string)
	require.NotEmpty(t, channelID)

	rec = f.do(t, http.MethodPost, "/channels/general/membership", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/channels/general/messages", bob, handlers.SendMessageRequest{TextMessage: "hi all"})
	env = decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.StatusCode, rec.Body.String())
	assert.Equal(t, "Message sent successfully!", env.Message)
	assert.NotEmpty(t, env.Metadata["message_id"])

	rec = f.do(t, http.MethodPost, "/channels/"+channelID+"/messages", bob, handlers.SendMessageRequest{TextMessage: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/channels/general/messages?pageSize=1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var messages struct {
		Data []struct {
			Username string `json:"username"`
			Message  string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages.Data, 1)
	assert.Equal(t, "bob", messages.Data[0].Username)
	assert.Equal(t, "hi all", messages.Data[0].Message)

	rec = f.do(t, http.MethodGet, "/channels?pageSize=0", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/channels?exclude=gen,foo", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var channels struct {
		Data  []chat.ChannelSummary `json:"data"`
		Count int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	assert.Empty(t, channels.Data)

	rec = f.do(t, http.MethodGet, "/channels", bob, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	require.Len(t, channels.Data, 1)
	require.NotNil(t, channels.Data[0].LastMessage)
	assert.Equal(t, "hi all", channels.Data[0].LastMessage.Body)

	rec = f.do(t, http.MethodDelete, "/channels/general/membership", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/channels/general/membership", bob, nil)
	env = decodeEnvelope(t, rec)
	assert.Equal(t, "NOT_FOUND", env.Status)
}

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set(echo.HeaderAuthorization, auth.Scheme+" "+token)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebsocketAnonymousCannotSubscribe(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.echo)
	defer ts.Close()

	conn := dialWS(t, ts, "")
	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: "1", Channel: "general"}))
	frame := readFrame(t, conn)
	assert.Equal(t, handlers.FrameError, frame["type"])
	assert.Equal(t, "1", frame["id"])
	assert.Equal(t, handlers.CodeUnauthenticated, frame["code"])
	assert.Zero(t, f.hub.Keys())
}

func TestWebsocketReceivesSentMessages(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.register(t, "bob")
	alice := f.login(t, "alice").Token
	bob := f.login(t, "bob").Token
	rec := f.do(t, http.MethodPost, "/channels", alice, handlers.CreateChannelRequest{ChannelName: "general", Members: []string{"bob"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts := httptest.NewServer(f.echo)
	defer ts.Close()
	conn := dialWS(t, ts, bob)

	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: "s1", Channel: "missing"}))
	frame := readFrame(t, conn)
	assert.Equal(t, handlers.CodeNotFound, frame["code"])

	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: "s1", Channel: "general"}))
	frame = readFrame(t, conn)
	require.Equal(t, handlers.FrameSubscribed, frame["type"], frame)

	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: "s1", Channel: "general"}))
	frame = readFrame(t, conn)
	assert.Equal(t, handlers.CodeConflict, frame["code"])

	rec = f.do(t, http.MethodPost, "/channels/general/messages", alice, handlers.SendMessageRequest{TextMessage: "hello bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	frame = readFrame(t, conn)
	require.Equal(t, handlers.FrameMessage, frame["type"], frame)
	assert.Equal(t, "s1", frame["id"])
	msg, ok := frame["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello bob", msg["message"])
	assert.Equal(t, "alice", msg["username"])

	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameUnsubscribe, ID: "s1"}))
	frame = readFrame(t, conn)
	assert.Equal(t, handlers.FrameComplete, frame["type"])
	assert.Equal(t, "s1", frame["id"])

	require.Eventually(t, func() bool { return f.hub.Keys() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebsocketClosePrunesSubscriptions(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	alice := f.login(t, "alice").Token
	rec := f.do(t, http.MethodPost, "/channels", alice, handlers.CreateChannelRequest{ChannelName: "general"})
	require.Equal(t, http.StatusOK, rec.Code)

	ts := httptest.NewServer(f.echo)
	defer ts.Close()
	conn := dialWS(t, ts, alice)
	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: "a", Channel: "general"}))
	require.Equal(t, handlers.FrameSubscribed, readFrame(t, conn)["type"])
	require.Equal(t, 1, f.hub.Keys())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.hub.Keys() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketUnsubscribeByChannel(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	alice := f.login(t, "alice").Token
	rec := f.do(t, http.MethodPost, "/channels", alice, handlers.CreateChannelRequest{ChannelName: "general"})
	require.Equal(t, http.StatusOK, rec.Code)

	ts := httptest.NewServer(f.echo)
	defer ts.Close()
	conn := dialWS(t, ts, alice)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameSubscribe, ID: id, Channel: "general"}))
		require.Equal(t, handlers.FrameSubscribed, readFrame(t, conn)["type"])
	}

	require.NoError(t, conn.WriteJSON(handlers.ClientFrame{Type: handlers.FrameUnsubscribe, Channel: "general"}))
	completed := map[any]bool{}
	for range 2 {
		frame := readFrame(t, conn)
		require.Equal(t, handlers.FrameComplete, frame["type"], frame)
		completed[frame["id"]] = true
	}
	assert.Equal(t, map[any]bool{"a": true, "b": true}, completed)
	assert.Zero(t, f.hub.Keys())
}
