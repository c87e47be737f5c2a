package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"struk/internal/backend"
	"struk/internal/cli"
	"struk/internal/config"
	"struk/internal/log"
	"struk/internal/services"
	"struk/internal/sheets"
	gsheet "struk/internal/sheets/google"
)

// app carries what every subcommand needs. Tests replace open and newMirror.
type app struct {
	cfg    *config.Config
	logger *log.Logger

	open      func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error)
	newMirror func(ctx context.Context, cfg *config.Config) (sheets.ReceiptMirror, error)
}

func defaultApp() *app {
	return &app{
		open: func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
			bcfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return nil, err
			}
			return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
		},
		newMirror: func(ctx context.Context, cfg *config.Config) (sheets.ReceiptMirror, error) {
			return gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "strukctl",
		Short:         "Operate the struk receipt ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg == nil {
				cli.LoadEnvFile()
				a.cfg = config.Load()
			}
			if a.logger == nil {
				// Logs go to stderr so command output stays machine-readable.
				a.logger = log.New(log.Config{
					Level:     log.ParseLevel(a.cfg.LogLevel),
					Component: "strukctl",
					Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
						Level: log.ParseLevel(a.cfg.LogLevel),
					}),
				})
			}
			return a.cfg.Validate()
		},
	}

	root.AddCommand(
		newMigrateCmd(a),
		newDashboardCmd(a),
		newExportCmd(a),
		newMirrorCmd(a),
		newTokenCmd(a),
	)
	return root
}

// withReceipts opens the backend, builds the receipt services and runs fn.
func (a *app) withReceipts(ctx context.Context, fn func(*backend.Backend, *services.ReceiptStore, *services.ProfileService) error) error {
	res, err := a.open(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			a.logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	}()

	receipts := services.NewReceiptStore(res.Backend.Documents, res.Backend.Cache, nil, services.ReceiptStoreConfig{
		CacheTTL:     a.cfg.ReceiptsCacheTTL,
		StoreTimeout: a.cfg.StoreTimeout,
		Balance:      a.cfg.BalancePolicy(),
	}, a.logger)
	return fn(&res.Backend, receipts, services.NewProfileService(receipts, a.cfg.ProfileCacheTTL))
}
