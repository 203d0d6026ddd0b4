package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/lesspay/internal/config"
	"github.com/example/lesspay/internal/database"
	"github.com/example/lesspay/internal/logging"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database if needed and apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Connect(cfg.DatabaseURL, cfg.LogLevel, log)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			log.Info("migrations applied")
			return nil
		},
	}
}
