package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ent0n29/facemood/internal/app"
	"github.com/ent0n29/facemood/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           res.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received")

	// Hijacked websocket connections are not tracked by http.Server.
	res.API.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	waitForSessions(shutdownCtx, res)

	if err := res.Cleanup(); err != nil {
		log.Printf("cleanup failed: %v", err)
	}
	log.Printf("shutdown complete")
}

func waitForSessions(ctx context.Context, res *app.BuildResult) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for res.Sessions.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			log.Printf("shutdown: %d sessions still open", res.Sessions.ActiveCount())
			return
		case <-ticker.C:
		}
	}
}
