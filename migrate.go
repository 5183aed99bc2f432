package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/database"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			ctx := cmd.Context()

			cmd.Println("Connecting to database...")
			db, err := openServerDB(ctx, c)
			if err != nil {
				return err
			}
			defer db.Close()

			cmd.Println("Running migrations...")
			if err := database.Migrate(ctx, db, c.DatabaseDriver); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			db, err := openServerDB(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := database.Version(db, c.DatabaseDriver)
			if err != nil {
				return oops.Code("MIGRATION_STATUS_FAILED").With("driver", c.DatabaseDriver).Wrap(err)
			}
			cmd.Printf("Schema version: %d (%s)\n", version, c.DatabaseDriver)
			return nil
		},
	})

	return cmd
}
