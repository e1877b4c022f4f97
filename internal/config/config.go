// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Balance storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	// Server
	Port        int      `env:"PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	DataDir        string `env:"DATA_DIR" envDefault:"data"`
	BalanceBackend string `env:"BALANCE_BACKEND" envDefault:"file"`
	DBPath         string `env:"DB_PATH" envDefault:"data/ptc.db"`

	// Ledger and content rules
	TxCap           int           `env:"BALANCE_TX_CAP" envDefault:"50"`
	SoftDeleteGrace time.Duration `env:"SOFT_DELETE_GRACE" envDefault:"30m"`
	AdCooldown      time.Duration `env:"AD_COOLDOWN" envDefault:"23h"`
	PlatformReward  int64         `env:"PLATFORM_REWARD" envDefault:"25"`

	// External profile source
	ProfileSourceURL     string        `env:"PROFILE_SOURCE_URL" envDefault:"https://auth.directsponsor.org/api/sync.php"`
	ProfileSourceTimeout time.Duration `env:"PROFILE_SOURCE_TIMEOUT" envDefault:"5s"`
	ProfileClientID      string        `env:"PROFILE_CLIENT_ID"`
	ProfileClientSecret  string        `env:"PROFILE_CLIENT_SECRET"`
	ProfileTokenURL      string        `env:"PROFILE_TOKEN_URL"`

	// Admin auth. An empty JWT secret disables the admin routes.
	AdminUsername     string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string `env:"JWT_SECRET"`
	SecureCookies     bool   `env:"SECURE_COOKIES" envDefault:"false"`

	// Conflict resolver
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0"`
	ResolverOverdue   time.Duration `env:"RESOLVER_OVERDUE" envDefault:"48h"`

	// Operator alerts
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given map instead of the process
// environment. Used by tests and by tools that build an environment themselves.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.BalanceBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("config: BALANCE_BACKEND must be %q or %q, got %q",
			BackendFile, BackendSQLite, c.BalanceBackend)
	}
	if c.TxCap <= 0 {
		return fmt.Errorf("config: BALANCE_TX_CAP must be positive, got %d", c.TxCap)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.PlatformReward < 0 {
		return fmt.Errorf("config: PLATFORM_REWARD must not be negative")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("config: RECONCILE_INTERVAL must not be negative")
	}
	return nil
}

// AdminEnabled reports whether the admin routes should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

// TelegramEnabled reports whether operator alerts go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolverLogFile is the conflict resolver's log under DATA_DIR. The data
// layout itself belongs to repository/filestore.
func (c *Config) ResolverLogFile() string {
	return filepath.Join(c.DataDir, "logs", "conflict-resolver.log")
}
