package database

import (
	"context"
	"fmt"
	"log"
	"strings"

	"entgo.io/ent/dialect"
)

const campaignStatusCheck = `'DRAFT','PLANNING','DESIGN_COMPLETE','APPROVAL_PENDING','APPROVED','REJECTED',` +
	`'EDITING','READY','RUNNING','PAUSED','COMPLETED','CANCELLED'`

// schema uses {{pk}}, {{ts}} and {{float}} placeholders filled per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'viewer',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		last_login_at {{ts}},
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(36) PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		expires_at {{ts}} NOT NULL,
		last_seen_at {{ts}} NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL DEFAULT '',
		region VARCHAR(50) NOT NULL DEFAULT '',
		grade VARCHAR(20) NOT NULL DEFAULT '',
		gender VARCHAR(10) NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customer_groups (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		criteria TEXT NOT NULL DEFAULT '{}',
		member_count INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_by INTEGER,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		offer_type VARCHAR(20) NOT NULL,
		value {{float}} NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		valid_from {{ts}},
		valid_to {{ts}},
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scripts (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		channel_type VARCHAR(20) NOT NULL,
		subject VARCHAR(255) NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		channel_type VARCHAR(20) NOT NULL,
		sender VARCHAR(255) NOT NULL DEFAULT '',
		rate_limit_per_minute INTEGER NOT NULL DEFAULT 0,
		credentials TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notices (
		id {{pk}},
		title VARCHAR(200) NOT NULL,
		content TEXT NOT NULL,
		is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
		author_id INTEGER,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id {{pk}},
		name VARCHAR(200) NOT NULL,
		type VARCHAR(50) NOT NULL DEFAULT '',
		status VARCHAR(30) NOT NULL DEFAULT 'DRAFT' CHECK (status IN (` + campaignStatusCheck + `)),
		budget {{float}} NOT NULL DEFAULT 0,
		start_date {{ts}},
		end_date {{ts}},
		channels TEXT NOT NULL DEFAULT '[]',
		audience TEXT NOT NULL DEFAULT '{}',
		description TEXT NOT NULL DEFAULT '',
		created_by INTEGER,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status)`,
	`CREATE TABLE IF NOT EXISTS campaign_customer_groups (
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		customer_group_id INTEGER NOT NULL REFERENCES customer_groups(id),
		PRIMARY KEY (campaign_id, customer_group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_offers (
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		offer_id INTEGER NOT NULL REFERENCES offers(id),
		PRIMARY KEY (campaign_id, offer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_scripts (
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		script_id INTEGER NOT NULL REFERENCES scripts(id),
		PRIMARY KEY (campaign_id, script_id)
	)`,
	// Approval requests and history keep their campaign_id after a campaign is
	// hard-deleted, so neither table carries a foreign key to campaigns.
	`CREATE TABLE IF NOT EXISTS campaign_approval_requests (
		id {{pk}},
		campaign_id INTEGER NOT NULL,
		requester_id INTEGER NOT NULL,
		approver_id INTEGER NOT NULL,
		request_message TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','APPROVED','REJECTED')),
		response_message TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL,
		responded_at {{ts}}
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_approval_requests_pending
		ON campaign_approval_requests (campaign_id) WHERE status = 'PENDING'`,
	`CREATE TABLE IF NOT EXISTS campaign_history (
		id {{pk}},
		campaign_id INTEGER NOT NULL,
		campaign_name VARCHAR(200) NOT NULL DEFAULT '',
		action_type VARCHAR(20) NOT NULL,
		changed_by INTEGER,
		previous_status VARCHAR(30),
		new_status VARCHAR(30),
		comment TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaign_history_campaign ON campaign_history (campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_campaign_history_created_at ON campaign_history (created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id {{pk}},
		user_id INTEGER,
		action VARCHAR(50) NOT NULL,
		resource_type VARCHAR(50) NOT NULL DEFAULT '',
		resource_id VARCHAR(50) NOT NULL DEFAULT '',
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		severity VARCHAR(20) NOT NULL DEFAULT 'info',
		description TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
}

func schemaFor(d string) []string {
	var r *strings.Replacer
	if d == dialect.Postgres {
		r = strings.NewReplacer("{{pk}}", "SERIAL PRIMARY KEY", "{{ts}}", "TIMESTAMPTZ", "{{float}}", "DOUBLE PRECISION")
	} else {
		r = strings.NewReplacer("{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{ts}}", "TIMESTAMP", "{{float}}", "REAL")
	}

	stmts := make([]string, len(schema))
	for i, s := range schema {
		stmts[i] = r.Replace(s)
	}
	return stmts
}

// Migrate creates all tables and indexes that do not exist yet
func (c *Client) Migrate(ctx context.Context) error {
	if c.dialect == dialect.SQLite {
		if _, err := c.DB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	for i, stmt := range schemaFor(c.dialect) {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}

	log.Println("✅ Database schema is up to date")
	return nil
}
