package migrate

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateRecordsLedger(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	migrations, err := loadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var rows int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if rows != len(migrations) {
		t.Fatalf("expected one ledger row per migration, got %d of %d", rows, len(migrations))
	}
	var name string
	if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='inbox_tasks'`).Scan(&name); err != nil {
		t.Fatalf("expected inbox_tasks table: %v", err)
	}
}

func TestMigrateRerunIsNoOp(t *testing.T) {
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
	if after != before {
		t.Fatalf("rerun grew the ledger from %d to %d", before, after)
	}
}
