package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"struk/internal/backend"
	"struk/internal/services"
)

type dashboardCmd struct {
	app    *app
	userID string
	now    string
}

func newDashboardCmd(a *app) *cobra.Command {
	dc := &dashboardCmd{app: a}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print a user's dashboard as JSON",
		RunE:  dc.run,
	}
	cmd.Flags().StringVar(&dc.userID, "user", "", "User ID")
	cmd.Flags().StringVar(&dc.now, "now", "", "Reference time in RFC 3339 (default: current time)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (dc *dashboardCmd) run(cmd *cobra.Command, _ []string) error {
	now := time.Now()
	if dc.now != "" {
		t, err := time.Parse(time.RFC3339, dc.now)
		if err != nil {
			return fmt.Errorf("invalid --now %q: %w", dc.now, err)
		}
		now = t
	}

	return dc.app.withReceipts(cmd.Context(), func(_ *backend.Backend, receipts *services.ReceiptStore, profiles *services.ProfileService) error {
		result, err := services.NewDashboardService(receipts, profiles).Dashboard(cmd.Context(), dc.userID, now)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	})
}
