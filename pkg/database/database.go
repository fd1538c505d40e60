package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so repository code can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Client holds the database handle and the SQL dialect it speaks
type Client struct {
	DB      *sql.DB
	dialect string
}

// Config describes how to open the database
type Config struct {
	Driver string // postgres or sqlite3
	URL    string
	Pool   PoolConfig
	SSL    *SSLConfig
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for postgres connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string
	KeyPath      string
	RootCertPath string
}

// DefaultPoolConfig returns the production pool settings
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// DevPoolConfig returns a small pool for development and test environments
func DevPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// Open opens the database, configures the pool and verifies connectivity
func Open(cfg Config) (*Client, error) {
	var d string
	switch cfg.Driver {
	case "", dialect.Postgres:
		d = dialect.Postgres
	case dialect.SQLite, "sqlite":
		d = dialect.SQLite
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	connStr := cfg.URL
	if d == dialect.Postgres {
		var err error
		connStr, err = BuildConnectionString(cfg.URL, cfg.SSL)
		if err != nil {
			return nil, fmt.Errorf("failed building connection string: %w", err)
		}
		if cfg.SSL != nil && cfg.SSL.Mode != "" && cfg.SSL.Mode != "disable" {
			log.Printf("🔒 Database SSL enabled (mode: %s)", cfg.SSL.Mode)
		}
	}

	db, err := sql.Open(d, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", d, err)
	}

	pool := cfg.Pool
	if pool.MaxOpenConns == 0 {
		pool = DefaultPoolConfig()
	}
	if d == dialect.SQLite {
		// sqlite serialises writers; one long-lived connection avoids "database
		// is locked" and keeps in-memory databases alive.
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
		pool.ConnMaxLifetime = 0
		pool.ConnMaxIdleTime = 0
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed connecting to database: %w", err)
	}

	log.Printf("✅ Database connection pool configured (driver: %s, max_open: %d, max_idle: %d)",
		d, pool.MaxOpenConns, pool.MaxIdleConns)

	return &Client{DB: db, dialect: d}, nil
}

// NewClient wraps an already opened *sql.DB
func NewClient(db *sql.DB, driver string) *Client {
	return &Client{DB: db, dialect: driver}
}

// Dialect returns the SQL dialect name (postgres or sqlite3)
func (c *Client) Dialect() string {
	return c.dialect
}

// Builder returns a parameterised SQL builder for the client's dialect.
// All statements in this repository are produced through it.
func (c *Client) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.DB.Stats()
}

// Exec runs a built statement
func Exec(ctx context.Context, q Querier, stmt entsql.Querier) (sql.Result, error) {
	query, args := stmt.Query()
	return q.ExecContext(ctx, query, args...)
}

// Query runs a built select
func Query(ctx context.Context, q Querier, stmt entsql.Querier) (*sql.Rows, error) {
	query, args := stmt.Query()
	return q.QueryContext(ctx, query, args...)
}

// QueryRow runs a built select expected to return at most one row
func QueryRow(ctx context.Context, q Querier, stmt entsql.Querier) *sql.Row {
	query, args := stmt.Query()
	return q.QueryRowContext(ctx, query, args...)
}

// Count runs a built COUNT(*) select
func Count(ctx context.Context, q Querier, stmt entsql.Querier) (int, error) {
	var n int
	if err := QueryRow(ctx, q, stmt).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertID executes an insert and returns the generated id on every dialect
func (c *Client) InsertID(ctx context.Context, q Querier, ib *entsql.InsertBuilder) (int, error) {
	if c.dialect == dialect.Postgres {
		query, args := ib.Returning("id").Query()
		var id int
		if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := Exec(ctx, q, ib)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed reading inserted id: %w", err)
	}
	return int(id), nil
}
