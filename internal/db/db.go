// Package db opens the workspace-scoped SQLite database. All dashboard state
// lives in a single file under the workspace's .missionboard directory.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".missionboard"
	fileName     = "missionboard.db"
)

// EnsureWorkspace creates the .missionboard directory under the workspace.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the workspace database, creating it if needed, with foreign key
// enforcement on.
func Open(workspace string) (*sql.DB, error) {
	dir, err := EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	dsn := "file:" + filepath.Join(dir, fileName) + "?cache=shared&_pragma=foreign_keys(1)"
	return sql.Open("sqlite", dsn)
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), workspaceDir, fileName)
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
