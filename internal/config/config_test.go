package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/facemood/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" || cfg.MetricsNamespace != "facemood" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionIdleTimeout != 30*time.Second {
		t.Fatalf("SessionIdleTimeout = %v, want 30s", cfg.SessionIdleTimeout)
	}
	if cfg.PersistWindow != 3*time.Second {
		t.Fatalf("PersistWindow = %v, want 3s", cfg.PersistWindow)
	}
	if cfg.PersistMode != store.ModeLatest || cfg.SubjectMatch != store.MatchExact {
		t.Fatalf("PersistMode/SubjectMatch = %q/%q", cfg.PersistMode, cfg.SubjectMatch)
	}
	if cfg.StoreBackend != "auto" || cfg.ClassifierMode != "auto" || cfg.DetectorMode != "full" {
		t.Fatalf("unexpected backend defaults: %+v", cfg)
	}
	if cfg.SessionMaxConcurrent != 0 || cfg.AuthRequired {
		t.Fatalf("session cap or auth enabled by default")
	}
	if cfg.FrameMaxPixels != 4096*4096 {
		t.Fatalf("FrameMaxPixels = %d, want 4096*4096", cfg.FrameMaxPixels)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PERSIST_WINDOW", "10s")
	t.Setenv("PERSIST_MODE", "both")
	t.Setenv("SUBJECT_MATCH", "fold")
	t.Setenv("SESSION_MAX_CONCURRENT", "8")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	t.Setenv("REDIS_URL", " redis://localhost:6379/0 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PersistWindow != 10*time.Second || cfg.PersistMode != store.ModeBoth || cfg.SubjectMatch != store.MatchFold {
		t.Fatalf("unexpected persistence config: %+v", cfg)
	}
	if cfg.SessionMaxConcurrent != 8 || !cfg.AllowAnyOrigin {
		t.Fatalf("unexpected session config: %+v", cfg)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("RedisURL = %q, want trimmed", cfg.RedisURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"PERSIST_WINDOW":         "0s",
		"PERSIST_MODE":           "sometimes",
		"SUBJECT_MATCH":          "fuzzy",
		"SESSION_IDLE_TIMEOUT":   "10ms",
		"SESSION_MAX_CONCURRENT": "-1",
		"PERSIST_WORKERS":        "zero",
		"AUTH_REQUIRED":          "true",
		"APP_ALLOW_ANY_ORIGIN":   "maybe",
		"CLASSIFIER_FALLBACK":    "perhaps",
		"FRAME_MAX_PIXELS":       "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q should fail", key, value)
			}
		})
	}
}

func TestLoadReadsEnvFileWithoutOverriding(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "facemood.env")
	content := "PERSIST_WINDOW=7s\nAPP_BIND_ADDR=:7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("APP_ENV_FILE", path)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PersistWindow != 7*time.Second {
		t.Fatalf("PersistWindow = %v, want 7s from file", cfg.PersistWindow)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, environment should win", cfg.BindAddr)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should fail for a missing APP_ENV_FILE")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_ENV_FILE",
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"SESSION_IDLE_TIMEOUT",
		"SESSION_WRITE_TIMEOUT",
		"SESSION_MAX_CONCURRENT",
		"SESSION_MAX_FRAME_BYTES",
		"PERSIST_WINDOW",
		"PERSIST_MODE",
		"SUBJECT_MATCH",
		"PERSIST_WORKERS",
		"PERSIST_QUEUE",
		"PERSIST_TIMEOUT",
		"STORE_BACKEND",
		"DATABASE_URL",
		"SQLITE_PATH",
		"REDIS_URL",
		"REDIS_PREFIX",
		"CLASSIFIER_MODE",
		"CLASSIFIER_URL",
		"CLASSIFIER_TIMEOUT",
		"CLASSIFIER_MODEL_PATH",
		"CLASSIFIER_FALLBACK",
		"DETECTOR_MODE",
		"DETECTOR_CASCADE_PATH",
		"FRAME_MAX_DIM",
		"FRAME_MAX_PIXELS",
		"AUTH_SECRET",
		"AUTH_TOKEN_TTL",
		"AUTH_REQUIRED",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
	// Keep a stray .env in the package directory from leaking into tests.
	t.Chdir(t.TempDir())
}
