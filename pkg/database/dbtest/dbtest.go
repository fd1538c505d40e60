// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/database"
)

var seq atomic.Int64

// Open returns a fresh, migrated in-memory sqlite database that is closed when
// the test finishes.
func Open(t testing.TB) *database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, seq.Add(1))

	client, err := database.Open(database.Config{Driver: "sqlite3", URL: dsn})
	if err != nil {
		t.Fatalf("failed opening test database: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.Migrate(context.Background()); err != nil {
		t.Fatalf("failed migrating test database: %v", err)
	}
	return client
}

// Insert adds one row built from values and returns its id
func Insert(t testing.TB, c *database.Client, table string, values map[string]any) int {
	t.Helper()

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = values[col]
	}

	id, err := c.InsertID(context.Background(), c.DB, c.Builder().Insert(table).Columns(cols...).Values(args...))
	if err != nil {
		t.Fatalf("failed inserting into %s: %v", table, err)
	}
	return id
}

// User inserts an active user with the given role and returns its id
func User(t testing.TB, c *database.Client, email, name, role string) int {
	t.Helper()
	now := time.Now().UTC()
	return Insert(t, c, "users", map[string]any{
		"email":         email,
		"name":          name,
		"password_hash": "not-a-hash",
		"role":          role,
		"status":        "active",
		"created_at":    now,
		"updated_at":    now,
	})
}

// Stamped returns values with created_at and updated_at set to now
func Stamped(values map[string]any) map[string]any {
	now := time.Now().UTC()
	values["created_at"] = now
	values["updated_at"] = now
	return values
}
