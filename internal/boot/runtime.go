// Package boot provides runtime configuration and dependency wiring for the gateway.
package boot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/memohai/chatgate/internal/config"
)

// EnvPrefix is the prefix of every environment override (e.g. CHATGATE_HTTP_ADDR).
const EnvPrefix = "chatgate"

// RuntimeConfig holds parsed runtime settings (JWT, server address, backend session).
// Values may be overridden by environment variables (see EnvOverrides).
type RuntimeConfig struct {
	JwtSecret            string
	JwtExpiresIn         time.Duration
	RefreshExpiresIn     time.Duration
	ServerAddr           string
	BackendURL           string
	BackendAdminLogin    string
	BackendAdminPassword string
	BackendPasswordKey   string
	BackendTimeout       time.Duration
	DefaultTeam          string
	Location             *time.Location
}

// EnvOverrides lists the settings that can be replaced from the environment.
type EnvOverrides struct {
	HTTPAddr             string `envconfig:"HTTP_ADDR"`
	JWTSecret            string `envconfig:"JWT_SECRET"`
	BackendURL           string `envconfig:"BACKEND_URL"`
	BackendAdminLogin    string `envconfig:"BACKEND_ADMIN_LOGIN"`
	BackendAdminPassword string `envconfig:"BACKEND_ADMIN_PASSWORD"`
	BackendPasswordKey   string `envconfig:"BACKEND_PASSWORD_SECRET"`
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return buildRuntimeConfig(cfg, env)
}

func buildRuntimeConfig(cfg config.Config, env EnvOverrides) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		JwtSecret:            cfg.Auth.JWTSecret,
		ServerAddr:           cfg.Server.Addr,
		BackendURL:           cfg.Backend.URL,
		BackendAdminLogin:    cfg.Backend.AdminLogin,
		BackendAdminPassword: cfg.Backend.AdminPassword,
		BackendPasswordKey:   cfg.Backend.PasswordSecret,
		DefaultTeam:          strings.TrimSpace(cfg.Chat.DefaultTeam),
	}
	override(&ret.ServerAddr, env.HTTPAddr)
	override(&ret.JwtSecret, env.JWTSecret)
	override(&ret.BackendURL, env.BackendURL)
	override(&ret.BackendAdminLogin, env.BackendAdminLogin)
	override(&ret.BackendAdminPassword, env.BackendAdminPassword)
	override(&ret.BackendPasswordKey, env.BackendPasswordKey)

	if strings.TrimSpace(ret.JwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if strings.TrimSpace(ret.BackendPasswordKey) == "" {
		return nil, errors.New("backend password secret is required")
	}
	if ret.DefaultTeam == "" {
		ret.DefaultTeam = config.DefaultTeam
	}

	var err error
	if ret.JwtExpiresIn, err = time.ParseDuration(cfg.Auth.JWTExpiresIn); err != nil {
		return nil, fmt.Errorf("invalid jwt expires in: %w", err)
	}
	if ret.RefreshExpiresIn, err = time.ParseDuration(cfg.Auth.RefreshExpiresIn); err != nil {
		return nil, fmt.Errorf("invalid refresh expires in: %w", err)
	}
	if ret.BackendTimeout, err = time.ParseDuration(cfg.Backend.Timeout); err != nil {
		return nil, fmt.Errorf("invalid backend timeout: %w", err)
	}
	tz := strings.TrimSpace(cfg.Chat.TimeZone)
	if tz == "" {
		tz = config.DefaultTimeZone
	}
	if ret.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid time zone: %w", err)
	}
	return ret, nil
}

func override(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}
