package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration for calsync, loaded from the
// environment.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	DB struct {
		DSN string
	}

	OAuth struct {
		ClientID     string
		ClientSecret string
		AuthURL      string
		TokenURL     string
		Scopes       []string
	}

	Sync struct {
		// Interval between scheduler passes in serve mode.
		Interval time.Duration

		// RequestTimeout bounds a single remote calendar call.
		RequestTimeout time.Duration

		// MaxRetries bounds retries of transient remote failures.
		MaxRetries int

		// MatchThreshold is the minimum confidence for linking an imported
		// event title to a patient. 1.0 keeps plain substring semantics.
		MatchThreshold float64
	}
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("CALSYNC_LISTEN_ADDR", ":8080")
	cfg.MetricsAddr = getenvDefault("CALSYNC_METRICS_ADDR", ":9090")
	cfg.DB.DSN = os.Getenv("CALSYNC_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("CALSYNC_DB_HOST")
		name := os.Getenv("CALSYNC_DB_NAME")
		user := os.Getenv("CALSYNC_DB_USER")
		password := os.Getenv("CALSYNC_DB_PASSWORD")
		port := getenvDefault("CALSYNC_DB_PORT", "5432")
		sslmode := getenvDefault("CALSYNC_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.OAuth.ClientID = os.Getenv("CALSYNC_OAUTH_CLIENT_ID")
	cfg.OAuth.ClientSecret = os.Getenv("CALSYNC_OAUTH_CLIENT_SECRET")
	cfg.OAuth.AuthURL = getenvDefault("CALSYNC_OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth")
	cfg.OAuth.TokenURL = getenvDefault("CALSYNC_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token")
	cfg.OAuth.Scopes = getenvList("CALSYNC_OAUTH_SCOPES")
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = []string{"https://www.googleapis.com/auth/calendar.events"}
	}

	cfg.Sync.Interval = getenvDuration("CALSYNC_SYNC_INTERVAL", time.Hour)
	cfg.Sync.RequestTimeout = getenvDuration("CALSYNC_REQUEST_TIMEOUT", 30*time.Second)
	cfg.Sync.MaxRetries = getenvInt("CALSYNC_MAX_RETRIES", 3)
	cfg.Sync.MatchThreshold = getenvFloat("CALSYNC_MATCH_THRESHOLD", 1.0)

	if cfg.DB.DSN == "" {
		return nil, errors.New("CALSYNC_DB_DSN is required (or set CALSYNC_DB_HOST, CALSYNC_DB_NAME, and CALSYNC_DB_USER)")
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return nil, errors.New("oauth configuration is required: CALSYNC_OAUTH_CLIENT_ID and CALSYNC_OAUTH_CLIENT_SECRET")
	}
	if cfg.Sync.Interval < time.Minute {
		return nil, fmt.Errorf("CALSYNC_SYNC_INTERVAL must be at least 1m (got %s)", cfg.Sync.Interval)
	}
	if cfg.Sync.MatchThreshold <= 0 || cfg.Sync.MatchThreshold > 1 {
		return nil, fmt.Errorf("CALSYNC_MATCH_THRESHOLD must be in (0, 1] (got %g)", cfg.Sync.MatchThreshold)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
