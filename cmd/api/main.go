package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"chaptersynth/internal/api"
	"chaptersynth/internal/config"
	"chaptersynth/internal/observability"
	"chaptersynth/internal/platform"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()
	if cfg.Observability.OTLP != "" {
		shutdownOTel, err := observability.InitOTel(baseCtx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("init otel: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	deps, cleanup, err := platform.Build(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer cleanup()

	server := api.NewServer(deps.Store, deps.Store, deps.TaskAdapter, deps.Hub)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("api: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("api: shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
