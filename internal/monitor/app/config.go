package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

type Config struct {
	WatchlistFile    string // Path to the YAML roster file (default: ./watchlist.yaml)
	SessionCacheFile string // Path to the session token cache (default: ./session.json)

	Username string // Optional: attempt an automatic login at startup
	Password string // Optional: paired with Username

	Env          string // Environment (dev, staging, prod) (default: dev)
	LogLevel     string // Log level (debug, info, warn, error) (default: info)
	LogFormat    string // Log format (json, text) (default: json)
	LogErrorFile string // Optional: mirror warn/error records into this file

	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		WatchlistFile:       getEnvOrDefault("VRC_WATCHLIST_FILE", "watchlist.yaml"),
		SessionCacheFile:    getEnvOrDefault("VRC_SESSION_CACHE_FILE", "session.json"),
		Username:            os.Getenv("VRC_USERNAME"),
		Password:            os.Getenv("VRC_PASSWORD"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		LogErrorFile:        os.Getenv("LOG_ERROR_FILE"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Watchlist is the parsed roster file.
type Watchlist struct {
	CacheSession bool
	TOTPSecret   string
	Accounts     []domain.WatchedAccount
}

type watchlistFile struct {
	CacheSession bool               `yaml:"cache_session"`
	TOTPSecret   string             `yaml:"totp_secret"`
	Accounts     []watchlistAccount `yaml:"accounts"`
}

type watchlistAccount struct {
	ID           string   `yaml:"id"`
	Label        string   `yaml:"label"`
	PollInterval string   `yaml:"poll_interval"`
	Volume       *float64 `yaml:"volume"`
}

// LoadWatchlist parses the roster file. Poll intervals missing, unparseable,
// or non-positive fall back to the floor; any positive interval is honored.
// The label defaults to the id.
func LoadWatchlist(path string) (Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Watchlist{}, fmt.Errorf("read watchlist: %w", err)
	}
	return ParseWatchlist(data)
}

// ParseWatchlist parses roster YAML.
func ParseWatchlist(data []byte) (Watchlist, error) {
	var file watchlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Watchlist{}, fmt.Errorf("parse watchlist: %w", err)
	}

	list := Watchlist{
		CacheSession: file.CacheSession,
		TOTPSecret:   file.TOTPSecret,
	}
	for i, entry := range file.Accounts {
		if entry.ID == "" {
			return Watchlist{}, fmt.Errorf("watchlist account %d: missing id", i)
		}
		label := entry.Label
		if label == "" {
			label = entry.ID
		}

		interval := domain.MinPollInterval
		if entry.PollInterval != "" {
			if parsed, err := time.ParseDuration(entry.PollInterval); err == nil && parsed > 0 {
				interval = parsed
			}
		}

		list.Accounts = append(list.Accounts, domain.WatchedAccount{
			AccountID:    entry.ID,
			DisplayLabel: label,
			PollInterval: interval,
			VolumeHint:   entry.Volume,
		})
	}
	return list, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
