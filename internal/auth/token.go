// Package auth issues and validates the gateway's JWTs and attaches identities to HTTP
// requests and websocket sessions.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/identity"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const issuer = "chatgate"

// ErrInvalidToken is returned for malformed, expired or wrongly typed tokens.
var ErrInvalidToken = fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)

// Claims are the custom JWT claims. Subject holds the account ID.
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	Token            string    `json:"token"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Issuer signs and parses tokens with one HS256 secret.
type Issuer struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates the secret and lifetimes.
func NewIssuer(secret string, ttl, refreshTTL time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 || refreshTTL <= 0 {
		return nil, errors.New("jwt lifetimes must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, refreshTTL: refreshTTL, now: time.Now}, nil
}

// Issue returns a fresh access and refresh token for id.
func (i *Issuer) Issue(id identity.Identity) (TokenPair, error) {
	token, exp, err := i.sign(id, TokenTypeAccess, i.ttl)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := i.sign(id, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Token: token, RefreshToken: refresh, ExpiresAt: exp, RefreshExpiresAt: refreshExp}, nil
}

func (i *Issuer) sign(id identity.Identity, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username:  id.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

// ParseAccess validates an access token.
func (i *Issuer) ParseAccess(raw string) (*Claims, error) { return i.parse(raw, TokenTypeAccess) }

// ParseRefresh validates a refresh token.
func (i *Issuer) ParseRefresh(raw string) (*Claims, error) { return i.parse(raw, TokenTypeRefresh) }

func (i *Issuer) parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, tokenType)
	}
	if strings.TrimSpace(claims.Username) == "" {
		return nil, fmt.Errorf("%w: missing username", ErrInvalidToken)
	}
	return claims, nil
}
