package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
)

const testSecret = "test-secret-key"

var alice = identity.Identity{ID: "acc-1", Username: "alice", Email: "alice@example.com"}

type fakeAccounts map[string]identity.Identity

func (f fakeAccounts) GetByUsername(_ context.Context, username string) (identity.Identity, error) {
	if id, ok := f[strings.ToLower(username)]; ok {
		return id, nil
	}
	return identity.Anonymous, apperr.NotFound("user", username)
}

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return iss
}

func TestNewIssuerValidates(t *testing.T) {
	_, err := NewIssuer(" ", time.Hour, time.Hour)
	require.Error(t, err)
	_, err = NewIssuer("s", 0, time.Hour)
	require.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	iss := newIssuer(t)
	pair, err := iss.Issue(alice)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Token, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.ExpiresAt))

	claims, err := iss.ParseAccess(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "acc-1", claims.Subject)

	parsed, err := jwt.Parse(pair.Token, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "alice", mapClaims["username"])

	refresh, err := iss.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
}

func TestParseRejectsWrongTypeSecretAndExpiry(t *testing.T) {
	iss := newIssuer(t)
	pair, err := iss.Issue(alice)
	require.NoError(t, err)

	_, err = iss.ParseAccess(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = iss.ParseRefresh(pair.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewIssuer("other-secret", time.Hour, time.Hour)
	require.NoError(t, err)
	_, err = other.ParseAccess(pair.Token)
	require.ErrorIs(t, err, errdefs.ErrUnauthenticated)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iss.ParseAccess(pair.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.ParseAccess("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateHeaderForms(t *testing.T) {
	iss := newIssuer(t)
	a := NewAuthenticator(logger.Discard(), iss, fakeAccounts{"alice": alice})
	pair, err := iss.Issue(alice)
	require.NoError(t, err)
	ghost, err := iss.Issue(identity.Identity{ID: "x", Username: "ghost"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   identity.Identity
	}{
		{"valid", "JWT " + pair.Token, alice},
		{"absent", "", identity.Anonymous},
		{"bearer scheme", "Bearer " + pair.Token, identity.Anonymous},
		{"extra field", "JWT " + pair.Token + " extra", identity.Anonymous},
		{"garbage token", "JWT abc.def.ghi", identity.Anonymous},
		{"refresh token", "JWT " + pair.RefreshToken, identity.Anonymous},
		{"unknown account", "JWT " + ghost.Token, identity.Anonymous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Authenticate(context.Background(), tt.header))
		})
	}
}

func newEcho(a *Authenticator) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		status := http.StatusInternalServerError
		if errors.Is(err, errdefs.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		_ = c.NoContent(status)
	}
	e.Use(a.Middleware(func(c echo.Context) bool { return c.Path() == "/public" }))
	e.GET("/me", func(c echo.Context) error {
		id, err := IdentityFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id.Username)
	})
	e.GET("/public", func(c echo.Context) error {
		_, err := IdentityFromContext(c)
		return c.String(http.StatusOK, "anon="+boolString(err != nil))
	})
	return e
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestMiddleware(t *testing.T) {
	iss := newIssuer(t)
	e := newEcho(NewAuthenticator(logger.Discard(), iss, fakeAccounts{"alice": alice}))
	pair, err := iss.Issue(alice)
	require.NoError(t, err)
	ghost, err := iss.Issue(identity.Identity{ID: "x", Username: "ghost"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"jwt scheme", "/me", "JWT " + pair.Token, http.StatusOK, "alice"},
		{"bearer scheme", "/me", "Bearer " + pair.Token, http.StatusOK, "alice"},
		{"missing header", "/me", "", http.StatusUnauthorized, ""},
		{"refresh token", "/me", "JWT " + pair.RefreshToken, http.StatusUnauthorized, ""},
		{"unknown account", "/me", "JWT " + ghost.Token, http.StatusUnauthorized, ""},
		{"skipped route", "/public", "", http.StatusOK, "anon=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
