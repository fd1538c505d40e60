package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Apply the schema to the configured database. Every statement is
idempotent, so running it against an up-to-date database changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(context.Background())
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Printf("%s schema up to date (%s)\n", ok("✓"), cfg.DatabaseDriver)
			return nil
		},
	}
}
