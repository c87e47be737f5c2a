package main

import (
	"context"
	"errors"
	"os"
	"time"

	"struk/internal/amqp"
	"struk/internal/cli"
	"struk/internal/config"
	"struk/internal/log"
	"struk/internal/sheets"
	gsheet "struk/internal/sheets/google"
	mem "struk/internal/sheets/memory"
	"struk/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate, (*config.Config).ValidateWorker)

	logger.Info("Starting struk-worker")

	res := cli.OpenBackend(context.Background(), logger, cfg)

	var mirror sheets.ReceiptMirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		mirror = mem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	mirrorWorker := worker.NewMirrorWorker(res.Backend.Documents, mirror, 30*time.Second, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	go func() {
		err := amqpClient.ConsumeReceiptEvents(ctx, mirrorWorker.HandleReceiptEvent)
		if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
