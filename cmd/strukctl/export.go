package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"struk/internal/backend"
	"struk/internal/core"
	"struk/internal/export"
	"struk/internal/services"
)

type exportCmd struct {
	app    *app
	userID string
	from   string
	to     string
	out    string
}

func newExportCmd(a *app) *cobra.Command {
	ec := &exportCmd{app: a}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's receipts to an XLSX workbook",
		RunE:  ec.run,
	}
	cmd.Flags().StringVar(&ec.userID, "user", "", "User ID")
	cmd.Flags().StringVar(&ec.from, "from", "", "First date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&ec.to, "to", "", "Last date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&ec.out, "out", "", "Output path (default: receipts-<user>.xlsx)")
	_ = cmd.MarkFlagRequired("user")
	cmd.MarkFlagsRequiredTogether("from", "to")
	return cmd
}

func (ec *exportCmd) run(cmd *cobra.Command, _ []string) error {
	var window *core.DateRange
	if ec.from != "" {
		r, err := core.NewDateRange(ec.from, ec.to)
		if err != nil {
			return err
		}
		window = &r
	}
	out := ec.out
	if out == "" {
		out = fmt.Sprintf("receipts-%s.xlsx", ec.userID)
	}

	return ec.app.withReceipts(cmd.Context(), func(_ *backend.Backend, receipts *services.ReceiptStore, _ *services.ProfileService) error {
		data, err := export.NewService(receipts, ec.app.logger).ExportReceiptsXLSX(cmd.Context(), ec.userID, window)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
		return nil
	})
}
