package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/facemood/internal/auth"
	"github.com/ent0n29/facemood/internal/config"
	"github.com/ent0n29/facemood/internal/frame"
	"github.com/ent0n29/facemood/internal/httpapi"
	"github.com/ent0n29/facemood/internal/observability"
	"github.com/ent0n29/facemood/internal/session"
	"github.com/ent0n29/facemood/internal/store"
	"github.com/ent0n29/facemood/internal/vision"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Runner   *session.Runner
	Store    store.Store
	Recorder *store.Recorder
	Metrics  *observability.Metrics
	Backends httpapi.Backends

	// Cleanup should be called on shutdown. It drains pending writes and
	// closes the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	return build(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func build(ctx context.Context, cfg config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*BuildResult, error) {
	visionCfg := vision.Config{
		ClassifierMode:    cfg.ClassifierMode,
		ClassifierURL:     cfg.ClassifierURL,
		ClassifierTimeout: cfg.ClassifierTimeout,
		ModelPath:         cfg.ClassifierModelPath,
		Fallback:          cfg.ClassifierFallback,
		DetectorMode:      cfg.DetectorMode,
		CascadePath:       cfg.DetectorCascadePath,
	}
	classifier, classifierMode, err := vision.NewClassifier(visionCfg)
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	detector, detectorMode, err := vision.NewDetector(visionCfg)
	if err != nil {
		return nil, fmt.Errorf("detector init failed: %w", err)
	}
	log.Printf("vision: classifier=%s detector=%s", classifierMode, detectorMode)

	var gate auth.Gate
	if strings.TrimSpace(cfg.AuthSecret) != "" {
		g, err := auth.NewJWTGate(cfg.AuthSecret, cfg.AuthTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("auth init failed: %w", err)
		}
		gate = g
	}

	st, backend, err := store.NewStore(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	log.Printf("store: backend=%s persist_mode=%s subject_match=%s window=%s",
		backend, cfg.PersistMode, cfg.SubjectMatch, cfg.PersistWindow)

	metrics := observability.NewMetricsWith(reg, gatherer, cfg.MetricsNamespace)
	window := observability.NewStageWindow(512)
	observer := observability.NewSessionObserver(metrics, window)

	recorder := store.NewRecorder(st, store.RecorderConfig{
		Mode:     cfg.PersistMode,
		Matching: cfg.SubjectMatch,
		Workers:  cfg.PersistWorkers,
		Queue:    cfg.PersistQueue,
		Timeout:  cfg.PersistTimeout,
		OnEvent:  observer.PersistEvent,
	})

	sessions := session.NewManager(session.ManagerConfig{
		PersistWindow: cfg.PersistWindow,
		MaxConcurrent: int64(cfg.SessionMaxConcurrent),
	})
	sessions.SetHook(observer.SessionEvent)

	decoder := frame.NewDecoder(cfg.FrameMaxDim, cfg.SessionMaxFrameBytes)
	if cfg.FrameMaxPixels > 0 {
		decoder.MaxPixels = int64(cfg.FrameMaxPixels)
	}

	runner := &session.Runner{
		Decoder:     decoder,
		Detector:    detector,
		Classifier:  classifier,
		Recorder:    recorder,
		IdleTimeout: cfg.SessionIdleTimeout,
		Observer:    observer,
	}

	backends := httpapi.Backends{
		Classifier: classifierMode,
		Detector:   detectorMode,
		Store:      backend,
	}
	api := httpapi.New(cfg, httpapi.Deps{
		Sessions: sessions,
		Runner:   runner,
		Store:    st,
		Matching: cfg.SubjectMatch,
		Auth:     gate,
		Metrics:  metrics,
		Window:   window,
		Backends: backends,
	})

	cleanup := func() error {
		var errs []string
		recorder.Close()
		if c, ok := classifier.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if c, ok := detector.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := st.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Runner:   runner,
		Store:    st,
		Recorder: recorder,
		Metrics:  metrics,
		Backends: backends,
		Cleanup:  cleanup,
	}, nil
}
