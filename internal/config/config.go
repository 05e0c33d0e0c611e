package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the share ledger service.
type Config struct {
	Port     int
	LogLevel string
	LogFile  string

	// DatabaseURL selects the store: empty for in-memory, "sqlite:<path>"
	// or a postgres:// URL.
	DatabaseURL   string
	RedisURL      string
	RedisCacheTTL time.Duration

	// AuthToken is the shared bearer secret. Empty accepts any bearer.
	AuthToken string

	// StreamOrigins lists the browser origins allowed to open the trade
	// feed besides the server's own host. "*" allows any origin.
	StreamOrigins []string

	MinShares int64
	MaxShares int64

	ExpirationInterval time.Duration
	WebhookTimeout     time.Duration
	WebhookMaxAttempts int
	PriceWindow        time.Duration
	LockTimeout        time.Duration
	MaxRetries         int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

var defaults = map[string]any{
	"PORT":                   8080,
	"LOG_LEVEL":              "info",
	"LOG_FILE":               "",
	"DATABASE_URL":           "",
	"REDIS_URL":              "",
	"REDIS_CACHE_TTL":        "30s",
	"AUTH_TOKEN":             "",
	"STREAM_ALLOWED_ORIGINS": "",
	"MIN_SHARES":             100,
	"MAX_SHARES":             10000,
	"EXPIRATION_INTERVAL":    "1s",
	"WEBHOOK_TIMEOUT":        "5s",
	"WEBHOOK_MAX_ATTEMPTS":   3,
	"PRICE_WINDOW":           "5m",
	"LOCK_TIMEOUT":           "2s",
	"MAX_RETRIES":            3,
	"READ_TIMEOUT":           "5s",
	"WRITE_TIMEOUT":          "10s",
	"IDLE_TIMEOUT":           "60s",
	"SHUTDOWN_TIMEOUT":       "10s",
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// names one, a config file in any format viper understands. Environment
// variables win over the file. It returns an error for any invalid value.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	l := loader{v: v}
	cfg := &Config{
		Port:               l.int("PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFile:            v.GetString("LOG_FILE"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		RedisCacheTTL:      l.duration("REDIS_CACHE_TTL"),
		AuthToken:          v.GetString("AUTH_TOKEN"),
		StreamOrigins:      splitList(v.GetString("STREAM_ALLOWED_ORIGINS")),
		MinShares:          int64(l.int("MIN_SHARES")),
		MaxShares:          int64(l.int("MAX_SHARES")),
		ExpirationInterval: l.duration("EXPIRATION_INTERVAL"),
		WebhookTimeout:     l.duration("WEBHOOK_TIMEOUT"),
		WebhookMaxAttempts: l.int("WEBHOOK_MAX_ATTEMPTS"),
		PriceWindow:        l.duration("PRICE_WINDOW"),
		LockTimeout:        l.duration("LOCK_TIMEOUT"),
		MaxRetries:         l.int("MAX_RETRIES"),
		ReadTimeout:        l.duration("READ_TIMEOUT"),
		WriteTimeout:       l.duration("WRITE_TIMEOUT"),
		IdleTimeout:        l.duration("IDLE_TIMEOUT"),
		ShutdownTimeout:    l.duration("SHUTDOWN_TIMEOUT"),
	}
	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.MinShares < 1 {
		return fmt.Errorf("invalid MIN_SHARES: %d, must be positive", c.MinShares)
	}
	if c.MaxShares < c.MinShares {
		return fmt.Errorf("invalid MAX_SHARES: %d, must be at least MIN_SHARES (%d)", c.MaxShares, c.MinShares)
	}
	if c.WebhookMaxAttempts < 1 {
		return fmt.Errorf("invalid WEBHOOK_MAX_ATTEMPTS: %d, must be at least 1", c.WebhookMaxAttempts)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid MAX_RETRIES: %d, must not be negative", c.MaxRetries)
	}
	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "sqlite:") &&
		!strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("invalid DATABASE_URL: must start with sqlite:, postgres:// or postgresql://")
	}
	if c.RedisURL != "" && c.DatabaseURL == "" {
		return fmt.Errorf("invalid REDIS_URL: the cache requires DATABASE_URL")
	}
	for _, origin := range c.StreamOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("invalid STREAM_ALLOWED_ORIGINS entry %q: must be * or scheme://host[:port]", origin)
		}
	}
	return nil
}

// splitList splits a comma-separated setting, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loader reads typed values and keeps the first parse error.
type loader struct {
	v   *viper.Viper
	err error
}

func (l *loader) int(key string) int {
	if l.err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(l.v.GetString(key)))
	if err != nil {
		l.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (l *loader) duration(key string) time.Duration {
	if l.err != nil {
		return 0
	}
	d, err := time.ParseDuration(strings.TrimSpace(l.v.GetString(key)))
	if err != nil {
		l.err = fmt.Errorf("invalid %s: %w", key, err)
		return 0
	}
	if d <= 0 {
		l.err = fmt.Errorf("invalid %s: %s, must be positive", key, d)
	}
	return d
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
