package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/model"
)

// UpsertSession writes a session row keyed by SessionId: insert if new,
// full replace of all columns otherwise (spec.md §4.1: "the write is an
// idempotent upsert keyed by SessionId").
func (s *Store) UpsertSession(sess *model.Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	dirsJSON, _ := json.Marshal(sess.AdditionalDirs)

	var deletedUnix, tombstoneUnix any
	if sess.DeletedAt != nil {
		deletedUnix = sess.DeletedAt.Unix()
	}
	if sess.TombstoneAt != nil {
		tombstoneUnix = sess.TombstoneAt.Unix()
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (
			id, display_name, project_id, role_name, backend_id, backend_type,
			resume_token, cwd, additional_dirs, created_at, updated_at, deleted_at, tombstone_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			project_id = excluded.project_id,
			role_name = excluded.role_name,
			backend_id = excluded.backend_id,
			backend_type = excluded.backend_type,
			resume_token = excluded.resume_token,
			cwd = excluded.cwd,
			additional_dirs = excluded.additional_dirs,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			tombstone_at = excluded.tombstone_at`,
		sess.ID.String(), sess.DisplayName, sess.ProjectID.String(), sess.RoleName,
		sess.BackendID, sess.BackendType, sess.ResumeToken, sess.Cwd, string(dirsJSON),
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(), deletedUnix, tombstoneUnix,
	)
	if err != nil {
		return errs.NewStorageError("store.UpsertSession", err)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntitySession, sess.ID.String(), "", "", sess.DisplayName, model.AuditUpdated)
	return nil
}

// SoftDeleteSession sets deleted_at and tombstone_at together: the local
// delete that produces a tombstone other instances will observe as removed
// (spec.md §3 "Tombstones", §4.5).
func (s *Store) SoftDeleteSession(id uuid.UUID) error {
	now := time.Now().Unix()
	res, err := s.db.Exec(
		`UPDATE sessions SET deleted_at = ?, tombstone_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, now, id.String(),
	)
	if err != nil {
		return errs.NewStorageError("store.SoftDeleteSession", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewStorageError("store.SoftDeleteSession", sql.ErrNoRows)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntitySession, id.String(), "", "", "", model.AuditDeleted)
	return nil
}

// RestoreSession clears deleted_at and tombstone_at.
func (s *Store) RestoreSession(id uuid.UUID) error {
	now := time.Now().Unix()
	res, err := s.db.Exec(
		`UPDATE sessions SET deleted_at = NULL, tombstone_at = NULL, updated_at = ? WHERE id = ?`,
		now, id.String(),
	)
	if err != nil {
		return errs.NewStorageError("store.RestoreSession", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewStorageError("store.RestoreSession", sql.ErrNoRows)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntitySession, id.String(), "", "", "", model.AuditRestored)
	return nil
}

// GetSession loads one session by id regardless of soft-delete state.
func (s *Store) GetSession(id uuid.UUID) (*model.Session, error) {
	row := s.db.QueryRow(sessionSelectColumns+` FROM sessions WHERE id = ?`, id.String())
	sess, err := scanSession(row)
	if err != nil {
		return nil, errs.NewStorageError("store.GetSession", err)
	}
	return sess, nil
}

// ListActiveSessions returns all non-deleted sessions ordered by created_at.
func (s *Store) ListActiveSessions() ([]*model.Session, error) {
	return s.listSessions("WHERE deleted_at IS NULL")
}

// ListAllSessions returns every session including soft-deleted ones, for
// sync delta computation (spec.md §4.5 needs tombstoned rows too).
func (s *Store) ListAllSessions() ([]*model.Session, error) {
	return s.listSessions("")
}

const sessionSelectColumns = `SELECT id, display_name, project_id, role_name, backend_id, backend_type,
	resume_token, cwd, additional_dirs, created_at, updated_at, deleted_at, tombstone_at`

func (s *Store) listSessions(where string) ([]*model.Session, error) {
	rows, err := s.db.Query(sessionSelectColumns + ` FROM sessions ` + where + ` ORDER BY created_at`)
	if err != nil {
		return nil, errs.NewStorageError("store.listSessions", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errs.NewStorageError("store.listSessions", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (*model.Session, error) {
	sess := &model.Session{}
	var idStr, projectIDStr, dirsJSON string
	var createdUnix, updatedUnix int64
	var deletedUnix, tombstoneUnix sql.NullInt64

	if err := row.Scan(
		&idStr, &sess.DisplayName, &projectIDStr, &sess.RoleName, &sess.BackendID, &sess.BackendType,
		&sess.ResumeToken, &sess.Cwd, &dirsJSON, &createdUnix, &updatedUnix, &deletedUnix, &tombstoneUnix,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	projectID, err := uuid.Parse(projectIDStr)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	sess.ProjectID = projectID
	sess.Terminated = sess.BackendID == ""
	_ = json.Unmarshal([]byte(dirsJSON), &sess.AdditionalDirs)
	sess.CreatedAt = time.Unix(createdUnix, 0)
	sess.UpdatedAt = time.Unix(updatedUnix, 0)
	if deletedUnix.Valid {
		t := time.Unix(deletedUnix.Int64, 0)
		sess.DeletedAt = &t
	}
	if tombstoneUnix.Valid {
		t := time.Unix(tombstoneUnix.Int64, 0)
		sess.TombstoneAt = &t
	}
	return sess, nil
}

// PurgeTombstonesOlderThan hard-deletes sessions whose tombstone_at predates
// the cutoff, along with their worktree rows (spec.md §4.5 "An instance may
// purge tombstones whose tombstone_at is older than a fixed horizon").
func (s *Store) PurgeTombstonesOlderThan(horizon time.Duration) (int, error) {
	cutoff := time.Now().Add(-horizon).Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(`SELECT id FROM sessions WHERE tombstone_at IS NOT NULL AND tombstone_at < ?`, cutoff)
	if err != nil {
		return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
	}

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM worktrees WHERE session_id = ?`, id); err != nil {
			return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
		}
		if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorageError("store.PurgeTombstonesOlderThan", err)
	}
	if len(ids) > 0 {
		s.noteLocalWrite()
	}
	return len(ids), nil
}

// NextSessionCounter atomically increments and returns the persisted
// session_counter, used to generate default display names "Session N"
// (spec.md §9 "Supplemented Features").
func (s *Store) NextSessionCounter() (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errs.NewStorageError("store.NextSessionCounter", err)
	}
	defer func() { _ = tx.Rollback() }()

	var value int
	err = tx.QueryRow(`SELECT value FROM metadata WHERE key = 'session_counter'`).Scan(&value)
	if err != nil && err != sql.ErrNoRows {
		return 0, errs.NewStorageError("store.NextSessionCounter", err)
	}
	value++

	if _, err := tx.Exec(
		`INSERT INTO metadata (key, value) VALUES ('session_counter', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		value,
	); err != nil {
		return 0, errs.NewStorageError("store.NextSessionCounter", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorageError("store.NextSessionCounter", err)
	}
	s.noteLocalWrite()
	return value, nil
}

// RecordSessionCommand appends an audit-only row of the argv assembled for
// a launched session (spec.md §9 "session_commands ... a thin table, not a
// queue").
func (s *Store) RecordSessionCommand(sessionID uuid.UUID, tool string, argv []string) error {
	argvJSON, _ := json.Marshal(argv)
	_, err := s.db.Exec(
		`INSERT INTO session_commands (session_id, tool, argv, created_at) VALUES (?, ?, ?, ?)`,
		sessionID.String(), tool, string(argvJSON), time.Now().Unix(),
	)
	if err != nil {
		return errs.NewStorageError("store.RecordSessionCommand", err)
	}
	return nil
}
