// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":8080"
	DefaultJWTExpiresIn       = "24h"
	DefaultRefreshExpiresIn   = "168h"
	DefaultBackendURL         = "http://127.0.0.1:8065"
	DefaultBackendTimeout     = "10s"
	DefaultBackendRateLimit   = 50.0
	DefaultBackendBurst       = 20
	DefaultBackendMaxInFlight = 16
	DefaultTeam               = "main"
	DefaultTimeZone           = "UTC"
	DefaultStorageDriver      = "postgres"
	DefaultSQLitePath         = "data/chatgate.db"
	DefaultPGHost             = "127.0.0.1"
	DefaultPGPort             = 5432
	DefaultPGUser             = "postgres"
	DefaultPGDatabase         = "chatgate"
	DefaultPGSSLMode          = "disable"
	DefaultHubBufferSize      = 64
	DefaultHubSweepSpec       = "@every 30s"
	DefaultSummaryConcurrency = 4
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Backend  BackendConfig  `toml:"backend"`
	Chat     ChatConfig     `toml:"chat"`
	Hub      HubConfig      `toml:"hub"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the JWT secret and token lifetimes (e.g. 24h).
type AuthConfig struct {
	JWTSecret        string `toml:"jwt_secret"`
	JWTExpiresIn     string `toml:"jwt_expires_in"`
	RefreshExpiresIn string `toml:"refresh_expires_in"`
}

// BackendConfig describes the Mattermost server the gateway proxies.
type BackendConfig struct {
	URL           string `toml:"url"`
	AdminLogin    string `toml:"admin_login"`
	AdminPassword string `toml:"admin_password"`
	// PasswordSecret keys the derivation of per-user backend passwords.
	PasswordSecret string  `toml:"password_secret"`
	Timeout        string  `toml:"timeout"`
	RateLimit      float64 `toml:"rate_limit"`
	Burst          int     `toml:"burst"`
	MaxInFlight    int64   `toml:"max_in_flight"`
}

// ChatConfig holds chat presentation defaults.
type ChatConfig struct {
	DefaultTeam        string   `toml:"default_team"`
	TimeZone           string   `toml:"time_zone"`
	ExcludeChannels    []string `toml:"exclude_channels"`
	SummaryConcurrency int      `toml:"summary_concurrency"`
}

// HubConfig tunes the subscription hub.
type HubConfig struct {
	BufferSize int    `toml:"buffer_size"`
	SweepSpec  string `toml:"sweep_spec"`
}

// StorageConfig selects the account store driver ("postgres" or "sqlite").
type StorageConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// UsesSQLite reports whether the account store runs on SQLite.
func (c StorageConfig) UsesSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(c.Driver), "sqlite")
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn:     DefaultJWTExpiresIn,
			RefreshExpiresIn: DefaultRefreshExpiresIn,
		},
		Backend: BackendConfig{
			URL:         DefaultBackendURL,
			Timeout:     DefaultBackendTimeout,
			RateLimit:   DefaultBackendRateLimit,
			Burst:       DefaultBackendBurst,
			MaxInFlight: DefaultBackendMaxInFlight,
		},
		Chat: ChatConfig{
			DefaultTeam:        DefaultTeam,
			TimeZone:           DefaultTimeZone,
			SummaryConcurrency: DefaultSummaryConcurrency,
		},
		Hub: HubConfig{
			BufferSize: DefaultHubBufferSize,
			SweepSpec:  DefaultHubSweepSpec,
		},
		Storage: StorageConfig{
			Driver:     DefaultStorageDriver,
			SQLitePath: DefaultSQLitePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
