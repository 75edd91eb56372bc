package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/accounts"
	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
)

// Credentials checks passwords and looks accounts up by username.
type Credentials interface {
	Authenticate(ctx context.Context, username, password string) (identity.Identity, error)
	GetByUsername(ctx context.Context, username string) (identity.Identity, error)
}

// AuthHandler serves the token endpoints.
type AuthHandler struct {
	accounts Credentials
	issuer   *auth.Issuer
	logger   *slog.Logger
}

// TokenRequest is the body for POST /auth/token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body for POST /auth/token/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// VerifyRequest is the body for POST /auth/token/verify.
type VerifyRequest struct {
	Token string `json:"token"`
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(log *slog.Logger, accounts Credentials, issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		issuer:   issuer,
		logger:   logger.Or(log).With(slog.String("handler", "auth")),
	}
}

// Register mounts the token routes.
func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/token", h.Token)
	e.POST("/auth/token/refresh", h.Refresh)
	e.POST("/auth/token/verify", h.Verify)
}

// Token checks credentials and issues an access and a refresh token. Bad credentials
// answer 404 "Login Failed!".
func (h *AuthHandler) Token(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("body", err.Error())
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return apperr.Validation("username", "username and password are required")
	}
	id, err := h.accounts.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) || errors.Is(err, accounts.ErrInactiveAccount) {
			h.logger.Info("login failed", slog.String("username", req.Username))
			return respond(c, NewEnvelope(http.StatusNotFound, "Login Failed!", nil))
		}
		return err
	}
	return h.issue(c, id, "Login Successfully!")
}

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("body", err.Error())
	}
	claims, err := h.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		return err
	}
	id, err := h.accounts.GetByUsername(c.Request().Context(), claims.Username)
	if err != nil {
		return auth.ErrInvalidToken
	}
	return h.issue(c, id, "Token refreshed successfully!")
}

// Verify reports whether an access token is valid.
func (h *AuthHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("body", err.Error())
	}
	claims, err := h.issuer.ParseAccess(req.Token)
	if err != nil {
		return err
	}
	meta := map[string]any{"username": claims.Username}
	if claims.ExpiresAt != nil {
		meta["exp"] = claims.ExpiresAt.Unix()
	}
	return respond(c, NewEnvelope(http.StatusOK, "Token is valid.", meta))
}

func (h *AuthHandler) issue(c echo.Context, id identity.Identity, message string) error {
	pair, err := h.issuer.Issue(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenEnvelope{
		Envelope: NewEnvelope(http.StatusOK, message, map[string]any{
			"id":       id.ID,
			"username": id.Username,
			"email":    id.Email,
		}),
		Token:        pair.Token,
		RefreshToken: pair.RefreshToken,
	})
}
