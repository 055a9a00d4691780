package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/facemood/internal/config"
	"github.com/ent0n29/facemood/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		MetricsNamespace:     "test_app",
		SessionIdleTimeout:   30 * time.Second,
		SessionWriteTimeout:  time.Second,
		SessionMaxFrameBytes: 1 << 20,
		PersistWindow:        3 * time.Second,
		PersistMode:          store.ModeLatest,
		SubjectMatch:         store.MatchExact,
		PersistWorkers:       1,
		PersistQueue:         4,
		PersistTimeout:       time.Second,
		StoreBackend:         "auto",
		ClassifierMode:       "auto",
		DetectorMode:         "full",
		FrameMaxDim:          640,
	}
}

func TestBuildDefaults(t *testing.T) {
	reg := prometheus.NewRegistry()
	res, err := build(context.Background(), testConfig(), reg, reg)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Backends.Classifier != "mock" || res.Backends.Detector != "full" || res.Backends.Store != "memory" {
		t.Fatalf("Backends = %+v", res.Backends)
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	r, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("GET /readyz status = %d, want 200", r.StatusCode)
	}
}

func TestBuildSQLiteWithAuth(t *testing.T) {
	cfg := testConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "facemood.db")
	cfg.AuthSecret = "secret"
	cfg.AuthTokenTTL = time.Minute

	reg := prometheus.NewRegistry()
	res, err := build(context.Background(), cfg, reg, reg)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if res.Backends.Store != "sqlite" {
		t.Fatalf("store backend = %q, want sqlite", res.Backends.Store)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
}

func TestBuildRejectsBadClassifier(t *testing.T) {
	cfg := testConfig()
	cfg.ClassifierMode = "http"
	reg := prometheus.NewRegistry()
	if _, err := build(context.Background(), cfg, reg, reg); err == nil {
		t.Fatalf("build() should fail without CLASSIFIER_URL")
	}
}
