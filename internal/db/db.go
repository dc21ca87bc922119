// Package db opens the workspace SQLite databases.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir  = ".veribond"
	defaultDBName = "ledger.db"
)

type Config struct {
	Workspace string
	// Name overrides the database file name inside the workspace.
	Name string
}

// Path returns the file backing cfg.
func (cfg Config) Path() string {
	workspace, name := cfg.Workspace, cfg.Name
	if workspace == "" {
		workspace = "."
	}
	if name == "" {
		name = defaultDBName
	}
	return filepath.Join(workspace, workspaceDir, name)
}

// EnsureWorkspace creates the .veribond directory under workspace.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens a WAL-mode database with foreign keys on. Transactions take the
// write lock at BEGIN (_txlock=immediate), so a read-then-write inside one
// transaction never interleaves with another writer; busy_timeout makes the
// second writer wait instead of failing.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	path := cfg.Path()
	conn, err := sql.Open("sqlite", "file:"+path+
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}
