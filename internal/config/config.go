// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	AllowedUsers     []int64

	APIBaseURL     string
	APIToken       string
	OwnerID        int64
	RequestTimeout time.Duration
	RateLimit      float64

	SnapshotBackend string
	DatabasePath    string
	RedisURL        string

	RefreshInterval time.Duration
	PageSize        int
	FetchSize       int
	MaxPages        int
	IncludePending  bool
	SearchDebounce  time.Duration

	MetricsAddr string
	LogLevel    string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	baseURL := strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		APIBaseURL:       baseURL,
		APIToken:         os.Getenv("API_TOKEN"),
		SnapshotBackend:  envOrDefault("SNAPSHOT_BACKEND", "sqlite"),
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/gigboard.db"),
		RedisURL:         envOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
	}

	switch cfg.SnapshotBackend {
	case "sqlite", "redis", "none":
	default:
		return nil, fmt.Errorf("invalid SNAPSHOT_BACKEND %q, use: sqlite, redis, none", cfg.SnapshotBackend)
	}

	var err error
	if cfg.OwnerID, err = envInt64("OWNER_ID", 0); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = envFloat("RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = envDuration("REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SearchDebounce, err = envDuration("SEARCH_DEBOUNCE", 300*time.Millisecond); err != nil {
		return nil, err
	}
	pageSize, err := envInt64("PAGE_SIZE", 6)
	if err != nil {
		return nil, err
	}
	fetchSize, err := envInt64("FETCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	maxPages, err := envInt64("MAX_PAGES", 10)
	if err != nil {
		return nil, err
	}
	if pageSize < 1 || fetchSize < 1 || maxPages < 1 {
		return nil, fmt.Errorf("PAGE_SIZE, FETCH_SIZE and MAX_PAGES must be positive")
	}
	cfg.PageSize, cfg.FetchSize, cfg.MaxPages = int(pageSize), int(fetchSize), int(maxPages)
	if cfg.IncludePending, err = envBool("INCLUDE_PENDING", false); err != nil {
		return nil, err
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
