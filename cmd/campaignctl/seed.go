package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/catalog"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/testdata"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var (
		customers int
		campaigns int
		seed      int64
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with demo data",
		Long: `Generate customers, customer groups, offers, scripts and draft campaigns.
Campaigns are owned by the oldest administrator, so run create-admin first.

Examples:
  campaignctl seed
  campaignctl seed --customers 5000 --campaigns 40 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			ownerID, err := firstAdmin(ctx, db)
			if err != nil {
				return err
			}

			log := logger.Nop()
			hist := history.NewService(db, log, cfg.Location())
			campaignSvc := campaign.NewService(db, hist, log)
			catalogSvc := catalog.NewService(db, campaignSvc, cfg.Cipher, log)
			gen := testdata.NewGenerator(seed)

			started := time.Now()
			if err := testdata.InsertCustomers(ctx, db, gen.Customers(customers), batchSize); err != nil {
				return err
			}
			fmt.Printf("%s %d customers\n", ok("✓"), customers)

			var groupIDs, offerIDs, scriptIDs []int
			for _, in := range gen.Groups() {
				g, err := catalogSvc.CreateGroup(ctx, ownerID, in)
				if err != nil {
					return fmt.Errorf("group %q: %w", in.Name, err)
				}
				groupIDs = append(groupIDs, g.ID)
				fmt.Printf("%s group %s (%d members)\n", ok("✓"), bold(g.Name), g.MemberCount)
			}
			for _, in := range gen.Offers() {
				o, err := catalogSvc.CreateOffer(ctx, in)
				if err != nil {
					return fmt.Errorf("offer %q: %w", in.Name, err)
				}
				offerIDs = append(offerIDs, o.ID)
			}
			for _, in := range gen.Scripts() {
				s, err := catalogSvc.CreateScript(ctx, in)
				if err != nil {
					return fmt.Errorf("script %q: %w", in.Name, err)
				}
				scriptIDs = append(scriptIDs, s.ID)
			}
			fmt.Printf("%s %d offers, %d scripts\n", ok("✓"), len(offerIDs), len(scriptIDs))

			for i := 0; i < campaigns; i++ {
				in := gen.Campaign()
				in.CustomerGroupIDs = []int{groupIDs[i%len(groupIDs)]}
				in.OfferIDs = []int{offerIDs[i%len(offerIDs)]}
				in.ScriptIDs = []int{scriptIDs[i%len(scriptIDs)]}
				if _, err := campaignSvc.Create(ctx, ownerID, in); err != nil {
					return fmt.Errorf("campaign %q: %w", in.Name, err)
				}
			}
			fmt.Printf("%s %d campaigns\n", ok("✓"), campaigns)
			fmt.Printf("done in %s\n", time.Since(started).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&customers, "customers", 1000, "number of customers")
	cmd.Flags().IntVar(&campaigns, "campaigns", 20, "number of draft campaigns")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed; equal seeds give equal data")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "customers per insert statement")

	return cmd
}

func firstAdmin(ctx context.Context, db *database.Client) (int, error) {
	b := db.Builder()
	t := b.Table("users")
	q := b.Select(t.C("id")).From(t).
		Where(entsql.EQ(t.C("role"), "admin")).
		OrderBy(t.C("id")).
		Limit(1)

	var id int
	err := database.QueryRow(ctx, db.DB, q).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("no admin account found, run create-admin first")
	}
	return id, err
}
