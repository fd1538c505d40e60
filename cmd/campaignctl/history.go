package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Work with the campaign history log",
	}
	cmd.AddCommand(historyExportCmd())
	return cmd
}

func historyExportCmd() *cobra.Command {
	var (
		out        string
		campaignID int
		action     string
		since      string
		until      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export history entries to an Excel file",
		Long: `Write history entries, newest first, to an .xlsx file.

Examples:
  campaignctl history export --out history.xlsx
  campaignctl history export --campaign 12 --action approved --since 2026-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if action != "" && !history.ValidActionType(action) {
				return fmt.Errorf("unknown action type %q", action)
			}
			f := history.Filter{CampaignID: campaignID, ActionType: action}
			if f.Since, err = parseDay(since, cfg.Location()); err != nil {
				return err
			}
			if f.Until, err = parseDay(until, cfg.Location()); err != nil {
				return err
			}
			if !f.Until.IsZero() {
				f.Until = f.Until.AddDate(0, 0, 1)
			}

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			defer file.Close()

			svc := history.NewService(db, logger.Nop(), cfg.Location())
			n, err := svc.ExportXLSX(ctx, f, file)
			if err != nil {
				return err
			}
			fmt.Printf("%s wrote %d entries to %s\n", ok("✓"), n, bold(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "campaign-history.xlsx", "output file")
	cmd.Flags().IntVar(&campaignID, "campaign", 0, "only this campaign")
	cmd.Flags().StringVar(&action, "action", "", "only this action type")
	cmd.Flags().StringVar(&since, "since", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "last day to include (YYYY-MM-DD)")

	return cmd
}

// parseDay reads a YYYY-MM-DD day in loc; empty means unbounded
func parseDay(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", v)
	}
	return t, nil
}
