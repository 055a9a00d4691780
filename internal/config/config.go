package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/facemood/internal/store"
)

// Config contains all runtime settings for the emotion inference service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	SessionIdleTimeout   time.Duration
	SessionWriteTimeout  time.Duration
	SessionMaxConcurrent int
	SessionMaxFrameBytes int

	PersistWindow  time.Duration
	PersistMode    store.Mode
	SubjectMatch   store.Matching
	PersistWorkers int
	PersistQueue   int
	PersistTimeout time.Duration

	StoreBackend string
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string
	RedisPrefix  string

	ClassifierMode      string
	ClassifierURL       string
	ClassifierTimeout   time.Duration
	ClassifierModelPath string
	ClassifierFallback  bool
	DetectorMode        string
	DetectorCascadePath string
	FrameMaxDim         int
	FrameMaxPixels      int

	AuthSecret   string
	AuthTokenTTL time.Duration
	AuthRequired bool
}

// Load reads an optional dotenv file and then environment variables, applying
// safe defaults. Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "facemood"),
		StoreBackend:        strings.ToLower(envOrDefault("STORE_BACKEND", "auto")),
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		SQLitePath:          trimmedEnv("SQLITE_PATH"),
		RedisURL:            trimmedEnv("REDIS_URL"),
		RedisPrefix:         envOrDefault("REDIS_PREFIX", "facemood"),
		ClassifierMode:      strings.ToLower(envOrDefault("CLASSIFIER_MODE", "auto")),
		ClassifierURL:       trimmedEnv("CLASSIFIER_URL"),
		ClassifierModelPath: trimmedEnv("CLASSIFIER_MODEL_PATH"),
		DetectorMode:        strings.ToLower(envOrDefault("DETECTOR_MODE", "full")),
		DetectorCascadePath: trimmedEnv("DETECTOR_CASCADE_PATH"),
		AuthSecret:          trimmedEnv("AUTH_SECRET"),

		ShutdownTimeout:      15 * time.Second,
		SessionIdleTimeout:   30 * time.Second,
		SessionWriteTimeout:  10 * time.Second,
		SessionMaxFrameBytes: 2 << 20,
		PersistWindow:        3 * time.Second,
		PersistWorkers:       2,
		PersistQueue:         64,
		PersistTimeout:       2 * time.Second,
		ClassifierTimeout:    5 * time.Second,
		FrameMaxDim:          640,
		FrameMaxPixels:       4096 * 4096,
		AuthTokenTTL:         30 * time.Minute,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SESSION_IDLE_TIMEOUT", &cfg.SessionIdleTimeout},
		{"SESSION_WRITE_TIMEOUT", &cfg.SessionWriteTimeout},
		{"PERSIST_WINDOW", &cfg.PersistWindow},
		{"PERSIST_TIMEOUT", &cfg.PersistTimeout},
		{"CLASSIFIER_TIMEOUT", &cfg.ClassifierTimeout},
		{"AUTH_TOKEN_TTL", &cfg.AuthTokenTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SESSION_MAX_CONCURRENT", &cfg.SessionMaxConcurrent},
		{"SESSION_MAX_FRAME_BYTES", &cfg.SessionMaxFrameBytes},
		{"PERSIST_WORKERS", &cfg.PersistWorkers},
		{"PERSIST_QUEUE", &cfg.PersistQueue},
		{"FRAME_MAX_DIM", &cfg.FrameMaxDim},
		{"FRAME_MAX_PIXELS", &cfg.FrameMaxPixels},
	}
	for _, n := range ints {
		if *n.dst, err = intFromEnv(n.key, *n.dst); err != nil {
			return Config{}, err
		}
	}

	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.AuthRequired, err = boolFromEnv("AUTH_REQUIRED", false); err != nil {
		return Config{}, err
	}
	if cfg.ClassifierFallback, err = boolFromEnv("CLASSIFIER_FALLBACK", false); err != nil {
		return Config{}, err
	}
	if cfg.PersistMode, err = store.ParseMode(trimmedEnv("PERSIST_MODE")); err != nil {
		return Config{}, fmt.Errorf("PERSIST_MODE: %w", err)
	}
	if cfg.SubjectMatch, err = store.ParseMatching(trimmedEnv("SUBJECT_MATCH")); err != nil {
		return Config{}, fmt.Errorf("SUBJECT_MATCH: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.SessionIdleTimeout < time.Second:
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 1s")
	case c.SessionWriteTimeout <= 0:
		return fmt.Errorf("SESSION_WRITE_TIMEOUT must be positive")
	case c.PersistWindow <= 0:
		return fmt.Errorf("PERSIST_WINDOW must be positive")
	case c.SessionMaxConcurrent < 0:
		return fmt.Errorf("SESSION_MAX_CONCURRENT must be >= 0")
	case c.SessionMaxFrameBytes <= 0:
		return fmt.Errorf("SESSION_MAX_FRAME_BYTES must be positive")
	case c.PersistWorkers <= 0:
		return fmt.Errorf("PERSIST_WORKERS must be positive")
	case c.PersistQueue <= 0:
		return fmt.Errorf("PERSIST_QUEUE must be positive")
	case c.FrameMaxDim < 0:
		return fmt.Errorf("FRAME_MAX_DIM must be >= 0")
	case c.FrameMaxPixels <= 0:
		return fmt.Errorf("FRAME_MAX_PIXELS must be positive")
	case c.AuthRequired && c.AuthSecret == "":
		return fmt.Errorf("AUTH_REQUIRED needs AUTH_SECRET")
	}
	return nil
}

// loadEnvFile loads APP_ENV_FILE when set, otherwise .env when present.
func loadEnvFile() error {
	if path := trimmedEnv("APP_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("APP_ENV_FILE %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".env: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := trimmedEnv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
