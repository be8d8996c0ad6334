package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/db"
	"laundry-queue-backend/internal/logging"
)

func migrateCommand(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log, os.Stdout)

			gormDB, err := db.Open(&cfg.Database)
			if err != nil {
				return err
			}
			if err := db.Migrate(gormDB.WithContext(ctx)); err != nil {
				return errors.Wrap(err, "migrate")
			}
			logger.WithField("driver", cfg.Database.Driver).Info("database schema is up to date")
			return nil
		},
	}
}
