package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler-api/pkg/database"
)

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schedule run tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
