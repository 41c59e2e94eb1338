package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateCreatesSchema(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"agents", "tasks", "projects", "reports", "agent_logs"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	var before int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&before); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if before < 2 {
		t.Fatalf("version = %d, want all steps applied", before)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var after int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&after); err != nil {
		t.Fatalf("reread version: %v", err)
	}
	if after != before {
		t.Fatalf("version moved from %d to %d on a no-op run", before, after)
	}
}
