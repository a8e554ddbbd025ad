// Package config handles relay configuration
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Reputation providers.
const (
	ProviderIPInfo = "ipinfo"
	ProviderDNSBL  = "dnsbl"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":3000"`
	AdminGRPCAddr string `env:"ADMIN_GRPC_ADDR" envDefault:"127.0.0.1:50061"`

	Secret      string `env:"RELAY_SECRET"`
	AdminSecret string `env:"ADMIN_SECRET"`

	StoreBackend string        `env:"STORE_BACKEND" envDefault:"json"`
	BansFile     string        `env:"BANS_FILE" envDefault:"bans.txt"`
	WordsFile    string        `env:"WORDS_FILE" envDefault:"filtered_words.txt"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"relay.db"`
	PersistDelay time.Duration `env:"PERSIST_DELAY" envDefault:"0s"`

	Cooldown         time.Duration `env:"RATE_LIMIT_COOLDOWN" envDefault:"1500ms"`
	MaxNameLength    int           `env:"MAX_NAME_LENGTH" envDefault:"50"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH" envDefault:"5000"`
	FrameRate        float64       `env:"FRAME_RATE" envDefault:"20"`
	FrameBurst       int           `env:"FRAME_BURST" envDefault:"40"`
	SendBuffer       int           `env:"SEND_BUFFER" envDefault:"64"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`

	TrustForwardedFor bool `env:"TRUST_FORWARDED_FOR" envDefault:"true"`

	ReputationEnabled  bool          `env:"ENABLE_VPN_CHECK" envDefault:"false"`
	ReputationProvider string        `env:"REPUTATION_PROVIDER" envDefault:"ipinfo"`
	IPInfoToken        string        `env:"VPNCHECK_TOKEN"`
	DNSBLZone          string        `env:"DNSBL_ZONE" envDefault:"zen.spamhaus.org"`
	DNSBLServer        string        `env:"DNSBL_SERVER" envDefault:"1.1.1.1:53"`
	ReputationTimeout  time.Duration `env:"REPUTATION_TIMEOUT" envDefault:"2s"`

	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15m"`
	MetricsURL      string        `env:"METRICS_URL"`

	JoinEndpoint         string `env:"JOIN_ENDPOINT"`
	JoinToken            string `env:"JOIN_TOKEN"`
	MaxRecentGames       int    `env:"MAX_RECENT_GAMES" envDefault:"10"`
	RecentGamesAdminOnly bool   `env:"RECENT_GAMES_ADMIN_ONLY" envDefault:"true"`

	StaticDir string `env:"STATIC_DIR" envDefault:"public"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.ReputationProvider = strings.ToLower(strings.TrimSpace(cfg.ReputationProvider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND %q: want %q or %q", c.StoreBackend, BackendJSON, BackendSQLite)
	}
	switch c.ReputationProvider {
	case ProviderIPInfo, ProviderDNSBL:
	default:
		return fmt.Errorf("REPUTATION_PROVIDER %q: want %q or %q", c.ReputationProvider, ProviderIPInfo, ProviderDNSBL)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("RATE_LIMIT_COOLDOWN must not be negative")
	}
	if c.MaxNameLength <= 0 || c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_NAME_LENGTH and MAX_CONTENT_LENGTH must be positive")
	}
	if c.FrameRate <= 0 || c.FrameBurst <= 0 {
		return fmt.Errorf("FRAME_RATE and FRAME_BURST must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive")
	}
	if c.WriteTimeout <= 0 || c.ReputationTimeout <= 0 || c.MetricsInterval <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT, REPUTATION_TIMEOUT and METRICS_INTERVAL must be positive")
	}
	if c.PersistDelay < 0 {
		return fmt.Errorf("PERSIST_DELAY must not be negative")
	}
	if c.MaxRecentGames <= 0 {
		return fmt.Errorf("MAX_RECENT_GAMES must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels; unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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
