package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/multilingo/external/audio"
	configloader "github.com/foxseedlab/multilingo/external/config"
	presenceimpl "github.com/foxseedlab/multilingo/external/presence"
	repositoryimpl "github.com/foxseedlab/multilingo/external/repository"
	"github.com/foxseedlab/multilingo/external/server"
	"github.com/foxseedlab/multilingo/external/telemetry"
	transcriberimpl "github.com/foxseedlab/multilingo/external/transcriber"
	translatorimpl "github.com/foxseedlab/multilingo/external/translator"
	webhookimpl "github.com/foxseedlab/multilingo/external/webhook"
	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/control"
	"github.com/foxseedlab/multilingo/internal/pipeline"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/session"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "listen_addr", cfg.ListenAddr, "audio_codec", cfg.AudioCodec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	if err := run(ctx, injector); err != nil {
		slog.Error("server stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown failed", "error", err)
	}
	injector.Shutdown()
	slog.Info("shutdown complete")
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	presenceimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	translatorimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	registry.RegisterDI(injector)
	session.RegisterDI(injector)
	pipeline.RegisterDI(injector)
	control.RegisterDI(injector)
	server.RegisterDI(injector)

	return injector
}

func run(ctx context.Context, injector do.Injector) error {
	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		slog.Error("failed to resolve server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
