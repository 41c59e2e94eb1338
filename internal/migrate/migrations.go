// Package migrate brings the dashboard schema up to date from embedded SQL
// steps. Each sql/NNNN_name.sql file is one step; the applied version is
// tracked in schema_version.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type step struct {
	version int
	name    string
	stmts   string
}

func steps() ([]step, error) {
	names, err := fs.Glob(schemaFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var out []step
	for _, name := range names {
		base := strings.TrimPrefix(name, "sql/")
		num, _, ok := strings.Cut(base, "_")
		v, convErr := strconv.Atoi(num)
		if !ok || convErr != nil {
			return nil, fmt.Errorf("migration %s: name must start with a version number", base)
		}
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, step{version: v, name: base, stmts: string(data)})
	}
	return out, nil
}

// Migrate applies every step newer than the recorded version. The whole
// upgrade commits atomically, so a failed step leaves the previous schema.
func Migrate(db *sql.DB) error {
	all, err := steps()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	version, err := currentVersion(tx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.version <= version {
			continue
		}
		if _, err := tx.Exec(s.stmts); err != nil {
			return fmt.Errorf("apply %s: %w", s.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, s.version); err != nil {
			return fmt.Errorf("record version %d: %w", s.version, err)
		}
		version = s.version
	}
	return tx.Commit()
}

func currentVersion(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return 0, err
	}
	var v int
	err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		_, err = tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`)
		return 0, err
	}
	return v, err
}
