package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hust/bookingclient/adapters/events"
	"github.com/hust/bookingclient/adapters/remote"
	"github.com/hust/bookingclient/adapters/store"
)

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the runtime configuration of the booking client
type Config struct {
	APIBaseURL        string
	Paths             remote.Paths
	AuthFailureStatus int
	HTTPTimeout       time.Duration
	RefreshTimeout    time.Duration
	RefreshRetries    int
	RetryBackoff      time.Duration
	StateBackend      string
	StateFile         string
	RedisURL          string
	RedisKey          string
	EventsTopic       string
	LogLevel          string
}

// Load reads the configuration from environment variables
func Load() (Config, error) {
	cfg := Config{
		APIBaseURL: strings.TrimRight(envOr("BOOKING_API_URL", ""), "/"),
		Paths: remote.Paths{
			Login:    envOr("BOOKING_LOGIN_PATH", remote.DefaultPaths.Login),
			Register: envOr("BOOKING_REGISTER_PATH", remote.DefaultPaths.Register),
			Refresh:  envOr("BOOKING_REFRESH_PATH", remote.DefaultPaths.Refresh),
			Logout:   envOr("BOOKING_LOGOUT_PATH", remote.DefaultPaths.Logout),
		},
		AuthFailureStatus: intOr("BOOKING_AUTH_FAILURE_STATUS", 401),
		HTTPTimeout:       durationOr("BOOKING_HTTP_TIMEOUT", 15*time.Second),
		RefreshTimeout:    durationOr("BOOKING_REFRESH_TIMEOUT", 10*time.Second),
		RefreshRetries:    intOr("BOOKING_REFRESH_RETRIES", 0),
		RetryBackoff:      durationOr("BOOKING_REFRESH_BACKOFF", 200*time.Millisecond),
		StateBackend:      strings.ToLower(envOr("BOOKING_STATE_BACKEND", BackendFile)),
		StateFile:         envOr("BOOKING_STATE_FILE", defaultStateFile()),
		RedisURL:          envOr("REDIS_URL", ""),
		RedisKey:          envOr("BOOKING_REDIS_KEY", store.DefaultRedisKey),
		EventsTopic:       envOr("BOOKING_EVENTS_TOPIC", events.DefaultTopic),
		LogLevel:          envOr("LOG_LEVEL", "info"),
	}

	missing := make([]string, 0, 2)
	if cfg.APIBaseURL == "" {
		missing = append(missing, "BOOKING_API_URL")
	}
	if cfg.StateBackend == BackendRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("BOOKING_API_URL must be an absolute URL")
	}
	switch cfg.StateBackend {
	case BackendFile, BackendMemory, BackendRedis:
	default:
		return Config{}, fmt.Errorf("BOOKING_STATE_BACKEND must be one of file, memory, redis")
	}
	if cfg.AuthFailureStatus < 400 || cfg.AuthFailureStatus > 499 {
		return Config{}, fmt.Errorf("BOOKING_AUTH_FAILURE_STATUS must be a 4xx status")
	}
	if cfg.RefreshRetries < 0 {
		return Config{}, fmt.Errorf("BOOKING_REFRESH_RETRIES must not be negative")
	}
	if cfg.RefreshTimeout <= 0 || cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("timeouts must be positive")
	}

	return cfg, nil
}

// FakeAPIConfig holds the configuration of the local booking API
type FakeAPIConfig struct {
	Addr         string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	SeedEmail    string
	SeedPassword string
	LogLevel     string
}

// LoadFakeAPI reads the local booking API configuration from environment variables
func LoadFakeAPI() (FakeAPIConfig, error) {
	cfg := FakeAPIConfig{
		Addr:         envOr("FAKEAPI_ADDR", ":9000"),
		AccessTTL:    durationOr("FAKEAPI_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:   durationOr("FAKEAPI_REFRESH_TTL", 7*24*time.Hour),
		SeedEmail:    envOr("FAKEAPI_SEED_EMAIL", ""),
		SeedPassword: envOr("FAKEAPI_SEED_PASSWORD", ""),
		LogLevel:     envOr("LOG_LEVEL", "info"),
	}

	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return FakeAPIConfig{}, fmt.Errorf("token lifetimes must be positive")
	}
	if (cfg.SeedEmail == "") != (cfg.SeedPassword == "") {
		return FakeAPIConfig{}, fmt.Errorf("FAKEAPI_SEED_EMAIL and FAKEAPI_SEED_PASSWORD must be set together")
	}

	return cfg, nil
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "bookingclient-session.json"
	}
	return filepath.Join(dir, "bookingclient", "session.json")
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationOr(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}

func intOr(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
