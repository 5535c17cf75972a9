package migrate

import (
	"database/sql"
	"testing"

	"curabot/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateAppliesSchemaAndLedger(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"projects", "analyses", "steps", "patients"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing after migrate: %v", table, err)
		}
	}

	var stamp string
	if err := conn.QueryRow(`SELECT applied_at FROM schema_version WHERE version=1`).Scan(&stamp); err != nil {
		t.Fatalf("version 1 not in ledger: %v", err)
	}
	if stamp == "" {
		t.Fatal("applied_at not stamped")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	var before int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&before); err != nil {
		t.Fatalf("read ledger: %v", err)
	}

	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var after int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&after); err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if before != after {
		t.Fatalf("re-run changed ledger: %d -> %d", before, after)
	}
}
