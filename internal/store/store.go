// Package store implements the Database component of spec.md §4.1: the
// single source of durable truth for projects, sessions, worktrees, roles,
// MCP server configs, the session counter, the audit trail, and
// cross-process external-change detection. Grounded on the teacher's
// internal/statedb package (same WAL/busy-timeout/open/migrate shape),
// generalized from the teacher's flat instances/groups schema to spec.md
// §3's project/session/worktree model.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/logging"

	_ "modernc.org/sqlite"
)

var storeLog = logging.ForComponent(logging.CompStore)

// SchemaVersion is the current schema version. Bump when adding a migration.
const SchemaVersion = 1

// Store wraps a SQLite database for project/session/worktree persistence.
// Safe for concurrent use from multiple goroutines in one process; multiple
// OS processes share the file via WAL mode plus a busy timeout.
type Store struct {
	db         *sql.DB
	pid        int
	instanceID uuid.UUID

	mu          sync.Mutex
	dataVersion int64
}

// Open creates or opens a SQLite database at dbPath with WAL mode and a
// busy timeout, and runs the schema migrations. instanceID identifies this process in the
// audit trail and the heartbeat table (spec.md §4.1, §4.5).
func Open(dbPath string, instanceID uuid.UUID) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, errs.NewStorageError("store.Open", fmt.Errorf("mkdir: %w", err))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errs.NewStorageError("store.Open", err)
	}
	// PRAGMA data_version is connection-local: it does not advance for the
	// connection's own commits, and raw values from different connections
	// are not comparable. HasExternalChanges/noteLocalWrite rely on reading
	// it from the same connection that made the last local write, so the
	// pool is pinned to one physical connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errs.NewStorageError("store.Open", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	s := &Store{db: db, pid: os.Getpid(), instanceID: instanceID}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := s.readDataVersion(); err != nil {
		db.Close()
		return nil, err
	}

	storeLog.Debug("store_opened", "path", dbPath, "instance", instanceID.String())
	return s, nil
}

// DB returns the underlying *sql.DB, for tests and the admin sidecar's
// read-only reporting queries.
func (s *Store) DB() *sql.DB { return s.db }

// InstanceID returns this process's instance identifier.
func (s *Store) InstanceID() uuid.UUID { return s.instanceID }

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) readDataVersion() (int64, error) {
	var v int64
	if err := s.db.QueryRow("PRAGMA data_version").Scan(&v); err != nil {
		return 0, errs.NewStorageError("store.readDataVersion", err)
	}
	return v, nil
}

// HasExternalChanges reports whether any connection — in this process or
// another — has committed a write since the last call (or since Open, on
// the first call). A local write made through this *Store updates the
// stored token itself, so polling immediately after a local write reports
// false (spec.md §4.1 "External-change detection").
func (s *Store) HasExternalChanges() (bool, error) {
	v, err := s.readDataVersion()
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := v != s.dataVersion
	s.dataVersion = v
	return changed, nil
}

// noteLocalWrite refreshes the stored data-version token after a write made
// through this Store, so it is never mistaken for an external change.
func (s *Store) noteLocalWrite() {
	v, err := s.readDataVersion()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.dataVersion = v
	s.mu.Unlock()
}
