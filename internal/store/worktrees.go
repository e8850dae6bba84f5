package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/model"
)

// UpsertWorktree records or updates the worktree association for one
// (session, repo) pair.
func (s *Store) UpsertWorktree(w *model.Worktree) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	var deletedUnix any
	if w.DeletedAt != nil {
		deletedUnix = w.DeletedAt.Unix()
	}
	_, err := s.db.Exec(
		`INSERT INTO worktrees (session_id, repo_path, worktree_path, branch, created_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, repo_path) DO UPDATE SET
			worktree_path = excluded.worktree_path,
			branch = excluded.branch,
			deleted_at = excluded.deleted_at`,
		w.SessionID.String(), w.RepoPath, w.WorktreePath, w.Branch, w.CreatedAt.Unix(), deletedUnix,
	)
	if err != nil {
		return errs.NewStorageError("store.UpsertWorktree", err)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntityWorktree, w.SessionID.String(), w.RepoPath, "", w.WorktreePath, model.AuditCreated)
	return nil
}

// ListWorktreesForSession returns active worktrees for a session.
func (s *Store) ListWorktreesForSession(sessionID uuid.UUID) ([]*model.Worktree, error) {
	rows, err := s.db.Query(
		`SELECT session_id, repo_path, worktree_path, branch, created_at, deleted_at
		 FROM worktrees WHERE session_id = ? AND deleted_at IS NULL ORDER BY repo_path`,
		sessionID.String(),
	)
	if err != nil {
		return nil, errs.NewStorageError("store.ListWorktreesForSession", err)
	}
	defer rows.Close()

	var out []*model.Worktree
	for rows.Next() {
		w, err := scanWorktree(rows)
		if err != nil {
			return nil, errs.NewStorageError("store.ListWorktreesForSession", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorktree(row rowScanner) (*model.Worktree, error) {
	w := &model.Worktree{}
	var idStr string
	var createdUnix int64
	var deletedUnix sql.NullInt64
	if err := row.Scan(&idStr, &w.RepoPath, &w.WorktreePath, &w.Branch, &createdUnix, &deletedUnix); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	w.SessionID = id
	w.CreatedAt = time.Unix(createdUnix, 0)
	if deletedUnix.Valid {
		t := time.Unix(deletedUnix.Int64, 0)
		w.DeletedAt = &t
	}
	return w, nil
}

// HardDeleteWorktree removes a worktree row outright — the one entity for
// which spec.md §4.1 specifies hard delete ("Hard delete exists only for
// worktrees when a session is permanently removed").
func (s *Store) HardDeleteWorktree(sessionID uuid.UUID, repoPath string) error {
	_, err := s.db.Exec(`DELETE FROM worktrees WHERE session_id = ? AND repo_path = ?`, sessionID.String(), repoPath)
	if err != nil {
		return errs.NewStorageError("store.HardDeleteWorktree", err)
	}
	s.noteLocalWrite()
	return nil
}
