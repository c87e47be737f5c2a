package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"struk/internal/backend"
	"struk/internal/services"
	"struk/internal/worker"
)

func newMirrorCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Rewrite every receipt of a user into the Google Sheets mirror",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.GoogleSpreadsheetID == "" {
				return errors.New("GOOGLE_SPREADSHEET_ID is required to mirror receipts")
			}
			mirror, err := a.newMirror(cmd.Context(), a.cfg)
			if err != nil {
				return fmt.Errorf("sheets client: %w", err)
			}
			return a.withReceipts(cmd.Context(), func(b *backend.Backend, _ *services.ReceiptStore, _ *services.ProfileService) error {
				n, err := worker.NewMirrorWorker(b.Documents, mirror, 0, a.logger).MirrorUser(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "mirrored %d receipts for %s\n", n, userID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
