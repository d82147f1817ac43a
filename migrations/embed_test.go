package migrations_test

import (
	"context"
	"testing"

	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
	"github.com/nerrad567/graychat-core/migrations"
)

func TestSchemaUpAndDown(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.InMemory})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	m := database.NewMigrator(db, migrations.FS, ".")
	if _, err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	for _, table := range []string{"users", "sessions", "rooms", "room_allow_list", "messages", "audit_logs"} {
		var n int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&n); err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}

	for {
		version, err := m.Down(ctx)
		if err != nil {
			t.Fatalf("Down() error = %v", err)
		}
		if version == "" {
			break
		}
	}

	var remaining int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT IN ('schema_migrations')",
	).Scan(&remaining); err != nil {
		t.Fatalf("counting tables: %v", err)
	}
	if remaining != 0 {
		t.Errorf("%d tables left after rolling back everything", remaining)
	}
}
