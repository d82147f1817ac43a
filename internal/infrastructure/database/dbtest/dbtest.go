// Package dbtest opens migrated in-memory databases for repository tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
	"github.com/nerrad567/graychat-core/migrations"
)

// New returns a private in-memory database with the full schema applied.
// It is closed when the test ends.
func New(tb testing.TB) *database.DB {
	tb.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.InMemory, BusyTimeout: 1})
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := database.NewMigrator(db, migrations.FS, ".").Up(ctx); err != nil {
		tb.Fatalf("migrating test database: %v", err)
	}
	return db
}
