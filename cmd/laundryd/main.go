package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	root := &cobra.Command{
		Use:           "laundryd",
		Short:         "Laundry machine queue and availability service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "path to the YAML configuration file")

	root.AddCommand(
		serveCommand(ctx, &configPath),
		migrateCommand(ctx, &configPath),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		log.WithError(err).Fatal("laundryd failed")
	}
}
