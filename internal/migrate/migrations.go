// Package migrate applies the embedded schema migrations. Each applied
// migration leaves a row in schema_version, so the table doubles as an
// upgrade ledger for the workspace database.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"embed"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type migration struct {
	version int
	name    string
	stmts   string
}

// loadAll reads the embedded migrations, ordered by version. Filenames
// follow NNNN_label.sql; anything else is a packaging error.
func loadAll() ([]migration, error) {
	files, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	seen := map[int]string{}
	var out []migration
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &version); err != nil || version < 1 {
			return nil, fmt.Errorf("migration filename %s: want NNNN_label.sql", f.Name())
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, f.Name(), version)
		}
		seen[version] = f.Name()
		data, err := schemaFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: f.Name(), stmts: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func appliedVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version(
version INTEGER PRIMARY KEY,
name TEXT NOT NULL,
applied_time TEXT NOT NULL
);`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var current sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return int(current.Int64), nil
}

// Migrate brings the database up to the newest embedded schema. Every
// migration runs in its own transaction together with its ledger row,
// so a failure leaves the database at the last good version.
func Migrate(db *sql.DB) error {
	migrations, err := loadAll()
	if err != nil {
		return err
	}
	current, err := appliedVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
		current = m.version
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(m.stmts); err != nil {
		return fmt.Errorf("migration %s: %w", m.name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_version(version,name,applied_time) VALUES (?,?,?)`,
		m.version, m.name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	return tx.Commit()
}
