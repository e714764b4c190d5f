package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/ttsproxy/internal/app"
	"github.com/ent0n29/ttsproxy/internal/config"
	"github.com/ent0n29/ttsproxy/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	base, err := logging.New(logging.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Debug: cfg.DebugRequests})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(base)
	logger := base.Sugar()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("server exited", "error", err)
		logging.Sync(base)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.SugaredLogger) error {
	runCtx, runCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer runCancel()

	built, err := app.Build(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warnw("cleanup failed", "error", err)
		}
	}()

	logger.Infow("tts provider ready",
		"provider", built.Voice.Provider,
		"detail", built.Voice.Detail,
		"voice", built.Voice.Voice,
		"language", built.Voice.Language,
	)
	if cfg.VapiSecret == "" {
		logger.Warnw("VAPI_SECRET is not set; voice-requests are accepted without authentication")
	}

	if cfg.WarmupEnabled && len(cfg.WarmupPhrases) > 0 && len(cfg.WarmupRates) > 0 {
		go func() {
			started := time.Now()
			report := built.Pipeline.Warmup(runCtx, cfg.WarmupPhrases, cfg.WarmupRates)
			logger.Infow("pre-cached common phrases",
				"cached", report.Cached,
				"skipped", report.Skipped,
				"failed", report.Failed,
				"took", time.Since(started).String(),
			)
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-runCtx.Done():
	}
	logger.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Infow("shutdown complete")
	return nil
}
