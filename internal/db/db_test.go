package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "nested", "test.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return d
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{SQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{Postgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{Postgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		if got := tt.dialect.Rebind(tt.in); got != tt.want {
			t.Errorf("%s.Rebind(%q) = %q, want %q", tt.dialect, tt.in, got, tt.want)
		}
	}
}

func TestForUpdate(t *testing.T) {
	if got := SQLite.ForUpdate(); got != "" {
		t.Errorf("SQLite.ForUpdate() = %q, want empty", got)
	}
	if got := Postgres.ForUpdate(); got != " FOR UPDATE" {
		t.Errorf("Postgres.ForUpdate() = %q, want %q", got, " FOR UPDATE")
	}
}

func TestSchemaPlaceholdersReplaced(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres} {
		for _, stmt := range Schema(d) {
			if strings.Contains(stmt, "{{") {
				t.Errorf("%s schema has unreplaced placeholder: %s", d, stmt)
			}
		}
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d := newTestDB(t)
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if err := d.SchemaReady(context.Background()); err != nil {
		t.Errorf("SchemaReady() error = %v", err)
	}
}

func TestSchemaReadyBeforeMigrate(t *testing.T) {
	d, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "empty.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.SchemaReady(context.Background()); err == nil {
		t.Error("SchemaReady() error = nil on an empty database")
	}
}

func insertUser(t *testing.T, d *DB, name string) int64 {
	t.Helper()
	now := Now()
	var id int64
	err := d.QueryRowContext(context.Background(),
		`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		name, name+"@example.com", "x", now, now).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func TestUniqueViolation(t *testing.T) {
	d := newTestDB(t)
	insertUser(t, d, "alice")

	now := Now()
	_, err := d.ExecContext(context.Background(),
		`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"alice", "other@example.com", "x", now, now)
	if err == nil {
		t.Fatal("expected unique violation")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
	if IsCheckViolation(err) {
		t.Errorf("IsCheckViolation(%v) = true, want false", err)
	}
}

func TestCheckViolation(t *testing.T) {
	d := newTestDB(t)
	userID := insertUser(t, d, "bob")

	start := Now()
	_, err := d.ExecContext(context.Background(),
		`INSERT INTO pomodoro_sessions (user_id, start_time, end_time, duration, session_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, start, start.Add(-time.Minute), 1500, "work", start)
	if err == nil {
		t.Fatal("expected check violation for end_time before start_time")
	}
	if !IsCheckViolation(err) {
		t.Errorf("IsCheckViolation(%v) = false, want true", err)
	}
}

func TestOneOpenInterruptionPerSession(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	userID := insertUser(t, d, "carol")

	now := Now()
	var sessionID int64
	err := d.QueryRowContext(ctx,
		`INSERT INTO pomodoro_sessions (user_id, start_time, duration, session_type, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		userID, now, 1500, "work", now).Scan(&sessionID)
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}

	insert := `INSERT INTO pomodoro_session_interruptions (session_id, paused_at, created_at) VALUES (?, ?, ?)`
	if _, err := d.ExecContext(ctx, insert, sessionID, now, now); err != nil {
		t.Fatalf("first interruption: %v", err)
	}
	_, err = d.ExecContext(ctx, insert, sessionID, now, now)
	if !IsUniqueViolation(err) {
		t.Fatalf("second open interruption error = %v, want unique violation", err)
	}
}

func TestWithTxRollback(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("boom")

	err := d.WithTx(ctx, func(tx *Tx) error {
		now := Now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			"dave", "dave@example.com", "x", now, now); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want %v", err, sentinel)
	}

	var count int
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 0 {
		t.Errorf("users after rollback = %d, want 0", count)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	userID := insertUser(t, d, "erin")

	var createdAt time.Time
	if err := d.QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, userID).Scan(&createdAt); err != nil {
		t.Fatalf("scan created_at: %v", err)
	}
	if createdAt.IsZero() {
		t.Error("created_at is zero after round trip")
	}
	if time.Since(createdAt) > time.Minute {
		t.Errorf("created_at = %v, too far in the past", createdAt)
	}
}

func TestNormalize(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	in := time.Date(2025, 1, 2, 3, 4, 5, 123456789, loc)
	got := Normalize(in)
	if got.Location() != time.UTC {
		t.Errorf("Normalize() location = %v, want UTC", got.Location())
	}
	if got.Nanosecond() != 123456000 {
		t.Errorf("Normalize() nanos = %d, want 123456000", got.Nanosecond())
	}
	if !got.Equal(in.Truncate(time.Microsecond)) {
		t.Errorf("Normalize() = %v, want same instant as %v", got, in)
	}
}

// Errors from mattn/go-sqlite3, and drivers without typed codes, are
// classified by their SQLite message text.
func TestViolationMessageFallback(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantUnique bool
		wantCheck  bool
	}{
		{"nil", nil, false, false},
		{"unique", errors.New("UNIQUE constraint failed: users.username"), true, false},
		{"wrapped unique", fmt.Errorf("failed to create user: %w", errors.New("UNIQUE constraint failed: users.email")), true, false},
		{"check", errors.New("CHECK constraint failed: status IN ('pending')"), false, true},
		{"other", errors.New("database is locked"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.wantUnique {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.wantUnique)
			}
			if got := IsCheckViolation(tt.err); got != tt.wantCheck {
				t.Errorf("IsCheckViolation() = %v, want %v", got, tt.wantCheck)
			}
		})
	}
}
