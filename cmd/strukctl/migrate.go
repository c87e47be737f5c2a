package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"struk/internal/backend"
	"struk/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply document store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch backend.BackendType(a.cfg.DocumentBackend) {
			case backend.SQLiteBackend:
				if err := storage.RunMigrations(a.cfg.SQLiteDBPath); err != nil {
					return fmt.Errorf("migrate sqlite: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema at %s is up to date\n", a.cfg.SQLiteDBPath)
			case backend.PostgresBackend:
				if err := storage.RunPostgresMigrations(a.cfg.PostgresDSN); err != nil {
					return fmt.Errorf("migrate postgres: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "postgres schema is up to date")
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s backend has no schema to migrate\n", a.cfg.DocumentBackend)
			}
			return nil
		},
	}
}
