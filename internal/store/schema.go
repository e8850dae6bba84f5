package store

import (
	"fmt"

	"github.com/agentpane/paneboard/internal/errs"
)

// migration is one forward step, identified by the schema version it
// brings the database to.
type migration struct {
	version int
	apply   func(*Store) error
}

// migrations is grounded on the teacher's internal/statedb/migrate.go
// version-gated-function-list pattern; the teacher's migration itself
// imported a legacy JSON session file and is not reused (there is no
// legacy JSON format here), but its forward-only gating by
// metadata.schema_version is.
var migrations = []migration{
	{version: 1, apply: migrateV1},
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.NewStorageError("store.migrate", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return errs.NewStorageError("store.migrate", err)
	}

	var versionStr string
	err = tx.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&versionStr)
	current := 0
	if err == nil {
		fmt.Sscanf(versionStr, "%d", &current)
	}

	if err := tx.Commit(); err != nil {
		return errs.NewStorageError("store.migrate", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(s); err != nil {
			return errs.NewStorageError("store.migrate", fmt.Errorf("migration %d: %w", m.version, err))
		}
		if _, err := s.db.Exec(
			`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
			fmt.Sprintf("%d", m.version),
		); err != nil {
			return errs.NewStorageError("store.migrate", err)
		}
		storeLog.Debug("schema_migrated", "version", m.version)
	}

	if current == 0 {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO metadata (key, value) VALUES ('session_counter', '0')`,
		); err != nil {
			return errs.NewStorageError("store.migrate", err)
		}
	}

	return nil
}

// migrateV1 creates the full schema of spec.md §4.1 in one pass: projects,
// project_repos, project_roles, project_mcp_servers, sessions, worktrees,
// audit_log, session_commands, plus the instance_heartbeats table used by
// sync's primary election (spec.md §4.5, grounded on the teacher's
// instance_heartbeats table in internal/statedb/statedb.go).
func migrateV1(s *Store) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			is_default   INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL,
			deleted_at   INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS project_repos (
			project_id TEXT NOT NULL REFERENCES projects(id),
			repo_path  TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (project_id, repo_path)
		)`,
		`CREATE TABLE IF NOT EXISTS project_roles (
			project_id           TEXT NOT NULL REFERENCES projects(id),
			name                 TEXT NOT NULL,
			description          TEXT NOT NULL DEFAULT '',
			permission_mode      TEXT NOT NULL DEFAULT '',
			allowed_tools        TEXT NOT NULL DEFAULT '[]',
			disallowed_tools     TEXT NOT NULL DEFAULT '[]',
			tools_string         TEXT NOT NULL DEFAULT '',
			append_system_prompt TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (project_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS project_mcp_servers (
			project_id TEXT NOT NULL REFERENCES projects(id),
			name       TEXT NOT NULL,
			command    TEXT NOT NULL DEFAULT '',
			args       TEXT NOT NULL DEFAULT '[]',
			env        TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (project_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL,
			project_id      TEXT NOT NULL REFERENCES projects(id),
			role_name       TEXT NOT NULL DEFAULT '',
			backend_id      TEXT NOT NULL DEFAULT '',
			backend_type    TEXT NOT NULL DEFAULT 'local-mux',
			resume_token    TEXT NOT NULL DEFAULT '',
			cwd             TEXT NOT NULL DEFAULT '',
			additional_dirs TEXT NOT NULL DEFAULT '[]',
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			deleted_at      INTEGER,
			tombstone_at    INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS worktrees (
			session_id    TEXT NOT NULL REFERENCES sessions(id),
			repo_path     TEXT NOT NULL,
			worktree_path TEXT NOT NULL DEFAULT '',
			branch        TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			deleted_at    INTEGER,
			PRIMARY KEY (session_id, repo_path)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			action      TEXT NOT NULL,
			field       TEXT NOT NULL DEFAULT '',
			old_value   TEXT NOT NULL DEFAULT '',
			new_value   TEXT NOT NULL DEFAULT '',
			instance_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_commands (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			tool       TEXT NOT NULL,
			argv       TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS instance_heartbeats (
			pid        INTEGER PRIMARY KEY,
			instance_id TEXT NOT NULL,
			started    INTEGER NOT NULL,
			heartbeat  INTEGER NOT NULL,
			is_primary INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
