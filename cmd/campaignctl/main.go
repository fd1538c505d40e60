package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campaignctl",
		Short: "Operator tool for the CampaignDesk back office",
		Long: `campaignctl manages the CampaignDesk database and data outside the API:
schema migrations, the first admin account, demo data, encrypted settings
and history exports.

Configuration is read from the environment (and .env) exactly like the API server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(secretsCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, fail(err.Error()))
		os.Exit(1)
	}
}
