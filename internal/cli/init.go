// Package cli provides common initialization utilities shared by
// cmd/struk, cmd/struk-worker and cmd/strukctl.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"struk/internal/backend"
	"struk/internal/config"
	"struk/internal/log"
)

// SetupLogger creates the process logger at the given level and makes it
// the slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Handler = nil
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and runs each validator.
// Exits the process on the first failure.
func LoadAndValidateConfig(logger *log.Logger, validators ...func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if len(validators) == 0 {
		validators = []func(*config.Config) error{(*config.Config).Validate}
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed", log.FieldError, err)
			os.Exit(1)
		}
	}
	return cfg
}

// OpenBackend creates the document store and cache selected by cfg.
// Exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	var res *backend.BackendResult
	bcfg, err := backend.FromAppConfig(cfg)
	if err == nil {
		res, err = backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	}
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err,
			"document_backend", cfg.DocumentBackend,
			"cache_backend", cfg.CacheBackend)
		os.Exit(1)
	}
	return res
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that is cancelled on SIGINT or SIGTERM, and a channel
// closed once cleanup has run.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		// Consumers stop on ctx before their resources are closed.
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
