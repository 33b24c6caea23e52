package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/deeppomo/deeppomo/internal/db"
)

// NewDB opens a migrated SQLite database in a temp directory.
// A file is used instead of :memory: because every pooled connection to
// :memory: gets its own empty database.
func NewDB(t testing.TB) *db.DB {
	t.Helper()

	d, err := db.Open(context.Background(), db.Config{
		Driver: db.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "deeppomo.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return d
}

// InsertUser creates a bare user row and returns its id. Settings are not
// seeded; tests that need them seed through the settings store.
func InsertUser(t testing.TB, d *db.DB, username string) int64 {
	t.Helper()

	now := db.Now()
	var id int64
	err := d.QueryRowContext(context.Background(),
		`INSERT INTO users (username, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		username, username+"@example.com", "not-a-real-hash", now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert user %q: %v", username, err)
	}
	return id
}
