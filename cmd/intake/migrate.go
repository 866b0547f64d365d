package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoice-intake/migrations"
	"github.com/garyjia/invoice-intake/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is empty; nothing to migrate")
		}

		db, err := openDatabase(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := database.NewMigrator(db, logger).Run(cmd.Context(), migrations.FS)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", n, cfg.Database.Path)
		return nil
	},
}
