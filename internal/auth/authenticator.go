package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/identity"
	"github.com/memohai/chatgate/internal/logger"
)

// Scheme is the Authorization scheme clients send: "Authorization: JWT <token>".
const Scheme = "JWT"

const (
	claimsKey   = "auth.claims"
	identityKey = "auth.identity"
)

// AccountLookup resolves a username (case-insensitively) to an account.
type AccountLookup interface {
	GetByUsername(ctx context.Context, username string) (identity.Identity, error)
}

// Authenticator attaches identities to websocket sessions and HTTP requests.
type Authenticator struct {
	issuer   *Issuer
	accounts AccountLookup
	logger   *slog.Logger
}

// NewAuthenticator returns an Authenticator validating tokens from issuer.
func NewAuthenticator(log *slog.Logger, issuer *Issuer, accounts AccountLookup) *Authenticator {
	return &Authenticator{
		issuer:   issuer,
		accounts: accounts,
		logger:   logger.Or(log).With(slog.String("component", "authenticator")),
	}
}

// Authenticate inspects an Authorization header value at connection time. A well-formed
// "JWT <token>" whose username resolves yields that identity; anything else, including an
// empty header, yields identity.Anonymous. It never fails.
func (a *Authenticator) Authenticate(ctx context.Context, header string) identity.Identity {
	fields := strings.Fields(header)
	if len(fields) != 2 || fields[0] != Scheme {
		return identity.Anonymous
	}
	claims, err := a.issuer.ParseAccess(fields[1])
	if err != nil {
		a.logger.Debug("session token rejected", slog.Any("error", err))
		return identity.Anonymous
	}
	id, err := a.accounts.GetByUsername(ctx, claims.Username)
	if err != nil {
		a.logger.Debug("session account lookup failed", slog.String("username", claims.Username), slog.Any("error", err))
		return identity.Anonymous
	}
	return id
}

// JWTMiddleware validates "Authorization: JWT <token>" (or Bearer) with echo-jwt and stores
// the parsed claims on the request context.
func JWTMiddleware(issuer *Issuer, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		Skipper:     skipper,
		ContextKey:  claimsKey,
		TokenLookup: "header:Authorization:" + Scheme + " ,header:Authorization:Bearer ",
		ParseTokenFunc: func(_ echo.Context, raw string) (any, error) {
			return issuer.ParseAccess(raw)
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			if errors.Is(err, apperr.ErrUnauthenticated) {
				return err
			}
			return fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
		},
	})
}

// Middleware validates the token and resolves its username to an identity available
// through IdentityFromContext. Skipped routes get neither.
func (a *Authenticator) Middleware(skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	validate := JWTMiddleware(a.issuer, skipper)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		resolve := func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			claims, ok := c.Get(claimsKey).(*Claims)
			if !ok {
				return apperr.ErrUnauthenticated
			}
			id, err := a.accounts.GetByUsername(c.Request().Context(), claims.Username)
			if err != nil {
				return fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
			}
			c.Set(identityKey, id)
			return next(c)
		}
		return validate(resolve)
	}
}

// IdentityFromContext returns the identity attached by Middleware.
func IdentityFromContext(c echo.Context) (identity.Identity, error) {
	id, ok := c.Get(identityKey).(identity.Identity)
	if !ok || id.IsAnonymous() {
		return identity.Anonymous, apperr.ErrUnauthenticated
	}
	return id, nil
}
