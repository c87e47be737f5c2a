package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"struk/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			v, err := auth.NewVerifier(a.cfg.JWTSecret, a.cfg.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := v.Issue(userID, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
