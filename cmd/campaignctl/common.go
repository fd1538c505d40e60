package main

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/jordanlanch/campaigndesk/config"
	"github.com/jordanlanch/campaigndesk/pkg/database"
)

var (
	ok   = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	fail = color.New(color.FgRed).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
)

// openDB loads the configuration and opens a migrated database
func openDB(ctx context.Context) (*config.Config, *database.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(database.Config{
		Driver: cfg.DatabaseDriver,
		URL:    cfg.DatabaseURL,
		Pool:   database.DevPoolConfig(),
		SSL: &database.SSLConfig{
			Mode:         cfg.DBSSLMode,
			CertPath:     cfg.DBSSLCertPath,
			KeyPath:      cfg.DBSSLKeyPath,
			RootCertPath: cfg.DBSSLRootCertPath,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(mctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}
