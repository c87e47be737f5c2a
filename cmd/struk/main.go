package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"struk/internal/amqp"
	"struk/internal/auth"
	"struk/internal/cli"
	"struk/internal/config"
	"struk/internal/export"
	"struk/internal/gemini"
	apphttp "struk/internal/http"
	"struk/internal/ingest"
	"struk/internal/log"
	"struk/internal/middleware/ratelimit"
	"struk/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)

	ctx := context.Background()
	res := cli.OpenBackend(ctx, logger, cfg)
	docs, store := res.Backend.Documents, res.Backend.Cache

	// Receipt events are optional; without a broker nothing is mirrored.
	var (
		events     services.EventPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, receipt events disabled", log.FieldError, err)
		} else {
			amqpClient, events = client, client
		}
	}

	var model interface {
		ingest.Extractor
		services.Advisor
	} = gemini.Disabled{}
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Error("Failed to initialize Gemini client", log.FieldError, err)
			os.Exit(1)
		}
		model = client
	} else {
		logger.Warn("GEMINI_API_KEY not set, receipt drafts and insights are disabled")
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Error("Failed to initialize token verifier", log.FieldError, err)
		os.Exit(1)
	}

	receipts := services.NewReceiptStore(docs, store, events, services.ReceiptStoreConfig{
		CacheTTL:     cfg.ReceiptsCacheTTL,
		StoreTimeout: cfg.StoreTimeout,
		Balance:      cfg.BalancePolicy(),
	}, logger)
	profiles := services.NewProfileService(receipts, cfg.ProfileCacheTTL)

	checks := []apphttp.ReadinessCheck{{Name: "documents", Ping: docs.Ping}}
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, apphttp.ReadinessCheck{Name: "cache", Ping: pinger.Ping})
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Receipts:  receipts,
		Profiles:  profiles,
		Dashboard: services.NewDashboardService(receipts, profiles),
		Insights:  services.NewInsightService(receipts, profiles, model, cfg.ExtractionTimeout),
		Drafts: ingest.NewPipeline(model, ingest.Config{
			MaxBytes: cfg.UploadMaxBytes,
			TempDir:  cfg.UploadTempDir,
			Timeout:  cfg.ExtractionTimeout,
			Balance:  cfg.BalancePolicy(),
		}, logger),
		Export:   export.NewService(receipts, logger),
		Verifier: verifier,
		LoginLimiter: ratelimit.NewLoginLimiter(store, ratelimit.Config{
			MaxAttempts:   cfg.LoginMaxAttempts,
			WindowSeconds: cfg.LoginWindowSeconds,
		}, logger),
		RequestLimiter: ratelimit.NewRequestLimiter(store, cfg.APIRequestsPerMinute, logger),
		Checks:         checks,
		Logger:         logger,
		MaxUploadBytes: cfg.UploadMaxBytes,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = cfg.ExtractionTimeout + 15*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	srv.OnShutdown(func() {
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting struk server",
		"port", cfg.Port,
		"document_backend", cfg.DocumentBackend,
		"cache_backend", cfg.CacheBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
