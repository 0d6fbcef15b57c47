package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/config"
	"github.com/oxedro/erp-client/internal/database"
	"github.com/oxedro/erp-client/internal/handler"
	"github.com/oxedro/erp-client/internal/logger"
	"github.com/oxedro/erp-client/internal/observability"
	"github.com/oxedro/erp-client/internal/repository"
	"github.com/oxedro/erp-client/internal/router"
	"github.com/oxedro/erp-client/internal/service"
	"github.com/oxedro/erp-client/internal/validator"
	"github.com/rs/zerolog"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, nil)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("profile_source", cfg.ProfileSource).
		Str("version", version).
		Msg("Starting Oxedro auth bridge")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Error Reporting ───────────────────────────────────────────────
	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, version)
	if err != nil {
		log.Warn().Err(err).Msg("Sentry disabled")
	}
	defer flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Backend Client ────────────────────────────────────────────────
	client, err := backend.NewClient(backend.Config{
		Endpoint: cfg.BackendURL,
		APIKey:   cfg.BackendAPIKey,
		Timeout:  cfg.BackendTimeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid backend configuration")
	}
	checks := map[string]handler.Check{"backend": client.Ping}

	// ─── Profile Source ────────────────────────────────────────────────
	// nil reads profiles through the record API with each caller's session.
	var profiles service.ProfileFinder
	if cfg.ProfileSource == config.ProfileSourcePostgres {
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		profiles = repository.NewProfileRepository(pool)
		checks["postgres"] = pool.Ping
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	gateways := service.NewFactory(client, profiles, log)
	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(gateways),
		WS:     handler.NewWSHandler(gateways, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(checks),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// Stop accepting new HTTP requests; in-flight logins get 5s to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
