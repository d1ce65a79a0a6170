package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/eapproval/internal/config"
	"github.com/rafaeljc/eapproval/internal/database"
	"github.com/rafaeljc/eapproval/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the validation history schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Database.IsConfigured() {
				return errors.New("database is not configured (set EAPPROVAL_DB_URL or EAPPROVAL_DB_HOST)")
			}

			log := logger.New(&cfg.App)
			ctx := logger.WithContext(cmd.Context(), log)

			pool, err := database.NewPostgresPool(ctx, &cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			applied, err := database.Migrate(ctx, pool, dir)
			if err != nil {
				return err
			}
			log.Info("database schema is up to date", slog.Int("migrations", applied))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "migrations", "directory holding the .sql migrations")
	return cmd
}
