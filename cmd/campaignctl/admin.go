package main

import (
	"context"
	"fmt"

	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/user"
	"github.com/spf13/cobra"
)

func createAdminCmd() *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create the first administrator. Further accounts are managed through
the /users API by an administrator.

Examples:
  campaignctl create-admin --email admin@example.com --name 관리자 --password 'change-me-now'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := user.NewService(db, auth.NewSessionStore(db), audit.NewService(db), logger.Nop())
			info, err := svc.Create(ctx, user.Actor{UserAgent: "campaignctl"}, user.CreateInput{
				Email:    email,
				Name:     name,
				Password: password,
				Role:     auth.RoleAdmin,
			})
			if err != nil {
				return err
			}

			fmt.Printf("%s created admin %s (id %d)\n", ok("✓"), bold(info.Email), info.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "관리자", "display name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
