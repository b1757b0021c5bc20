package main

import (
	"github.com/spf13/cobra"

	"github.com/sweshisj/HealthcareApp/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap("claims-migrate")
			if err != nil {
				return err
			}
			defer log.Sync()

			return db.RunMigrations(cfg.Database.URL, log)
		},
	}
}
