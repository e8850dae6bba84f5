package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/model"
)

// CreateProject inserts a new project row plus its repo paths, roles, and
// MCP server configs, all within one transaction, and records a "created"
// audit entry (spec.md §4.1 "Operations exposed").
func (s *Store) CreateProject(p *model.Project) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.NewStorageError("store.CreateProject", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	isDefault := 0
	if p.IsDefault {
		isDefault = 1
	}
	if _, err := tx.Exec(
		`INSERT INTO projects (id, display_name, is_default, created_at, updated_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		p.ID.String(), p.DisplayName, isDefault, now.Unix(), now.Unix(),
	); err != nil {
		return errs.NewStorageError("store.CreateProject", err)
	}

	if err := replaceRepos(tx, p.ID, p.RepoPaths); err != nil {
		return errs.NewStorageError("store.CreateProject", err)
	}
	if err := replaceRoles(tx, p.ID, p.Roles); err != nil {
		return errs.NewStorageError("store.CreateProject", err)
	}
	if err := replaceMcpServers(tx, p.ID, p.McpServers); err != nil {
		return errs.NewStorageError("store.CreateProject", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.NewStorageError("store.CreateProject", err)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntityProject, p.ID.String(), "", "", p.DisplayName, model.AuditCreated)
	return nil
}

// UpdateProject replaces the display name, repo paths, roles, and MCP
// server configs of an existing project (spec.md §4.1: "partial fields for
// projects" at the field level, but roles/MCP-servers are always
// delete-all-then-insert within the same transaction).
func (s *Store) UpdateProject(p *model.Project) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.NewStorageError("store.UpdateProject", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	isDefault := 0
	if p.IsDefault {
		isDefault = 1
	}
	res, err := tx.Exec(
		`UPDATE projects SET display_name = ?, is_default = ?, updated_at = ? WHERE id = ?`,
		p.DisplayName, isDefault, now.Unix(), p.ID.String(),
	)
	if err != nil {
		return errs.NewStorageError("store.UpdateProject", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewStorageError("store.UpdateProject", sql.ErrNoRows)
	}

	if err := replaceRepos(tx, p.ID, p.RepoPaths); err != nil {
		return errs.NewStorageError("store.UpdateProject", err)
	}
	if err := replaceRoles(tx, p.ID, p.Roles); err != nil {
		return errs.NewStorageError("store.UpdateProject", err)
	}
	if err := replaceMcpServers(tx, p.ID, p.McpServers); err != nil {
		return errs.NewStorageError("store.UpdateProject", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.NewStorageError("store.UpdateProject", err)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntityProject, p.ID.String(), "display_name", "", p.DisplayName, model.AuditUpdated)
	return nil
}

// SoftDeleteProject sets deleted_at on a project. Active sessions under it
// are left untouched at the storage layer; the core enforces the "must
// refer to an active project" invariant at launch time (spec.md §3).
func (s *Store) SoftDeleteProject(id uuid.UUID) error {
	now := time.Now().Unix()
	res, err := s.db.Exec(`UPDATE projects SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id.String())
	if err != nil {
		return errs.NewStorageError("store.SoftDeleteProject", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewStorageError("store.SoftDeleteProject", sql.ErrNoRows)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntityProject, id.String(), "", "", "", model.AuditDeleted)
	return nil
}

// RestoreProject clears deleted_at on a project.
func (s *Store) RestoreProject(id uuid.UUID) error {
	now := time.Now().Unix()
	res, err := s.db.Exec(`UPDATE projects SET deleted_at = NULL, updated_at = ? WHERE id = ?`, now, id.String())
	if err != nil {
		return errs.NewStorageError("store.RestoreProject", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewStorageError("store.RestoreProject", sql.ErrNoRows)
	}
	s.noteLocalWrite()
	s.recordAudit(model.EntityProject, id.String(), "", "", "", model.AuditRestored)
	return nil
}

// GetProject loads one project by id, including repos/roles/MCP servers,
// regardless of soft-delete state.
func (s *Store) GetProject(id uuid.UUID) (*model.Project, error) {
	row := s.db.QueryRow(
		`SELECT id, display_name, is_default, created_at, updated_at, deleted_at FROM projects WHERE id = ?`,
		id.String(),
	)
	p, err := scanProject(row)
	if err != nil {
		return nil, errs.NewStorageError("store.GetProject", err)
	}
	if err := s.fillProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListActiveProjects returns all non-deleted projects ordered by display name.
func (s *Store) ListActiveProjects() ([]*model.Project, error) {
	return s.listProjects("WHERE deleted_at IS NULL")
}

// ListAllProjects returns every project including soft-deleted ones.
func (s *Store) ListAllProjects() ([]*model.Project, error) {
	return s.listProjects("")
}

func (s *Store) listProjects(where string) ([]*model.Project, error) {
	rows, err := s.db.Query(`SELECT id, display_name, is_default, created_at, updated_at, deleted_at FROM projects ` + where + ` ORDER BY display_name`)
	if err != nil {
		return nil, errs.NewStorageError("store.listProjects", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, errs.NewStorageError("store.listProjects", err)
		}
		if err := s.fillProject(p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	var idStr string
	var isDefault int
	var createdUnix, updatedUnix int64
	var deletedUnix sql.NullInt64
	if err := row.Scan(&idStr, &p.DisplayName, &isDefault, &createdUnix, &updatedUnix, &deletedUnix); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.IsDefault = isDefault != 0
	p.CreatedAt = time.Unix(createdUnix, 0)
	p.UpdatedAt = time.Unix(updatedUnix, 0)
	if deletedUnix.Valid {
		t := time.Unix(deletedUnix.Int64, 0)
		p.DeletedAt = &t
	}
	return p, nil
}

func (s *Store) fillProject(p *model.Project) error {
	repoRows, err := s.db.Query(`SELECT repo_path FROM project_repos WHERE project_id = ? ORDER BY sort_order`, p.ID.String())
	if err != nil {
		return errs.NewStorageError("store.fillProject", err)
	}
	for repoRows.Next() {
		var path string
		if err := repoRows.Scan(&path); err != nil {
			repoRows.Close()
			return errs.NewStorageError("store.fillProject", err)
		}
		p.RepoPaths = append(p.RepoPaths, path)
	}
	repoRows.Close()
	if err := repoRows.Err(); err != nil {
		return errs.NewStorageError("store.fillProject", err)
	}

	roleRows, err := s.db.Query(
		`SELECT name, description, permission_mode, allowed_tools, disallowed_tools, tools_string, append_system_prompt
		 FROM project_roles WHERE project_id = ? ORDER BY name`, p.ID.String())
	if err != nil {
		return errs.NewStorageError("store.fillProject", err)
	}
	for roleRows.Next() {
		var r model.Role
		var allowedJSON, disallowedJSON string
		if err := roleRows.Scan(&r.Name, &r.Description, &r.PermissionMode, &allowedJSON, &disallowedJSON, &r.ToolsString, &r.AppendSystemPrompt); err != nil {
			roleRows.Close()
			return errs.NewStorageError("store.fillProject", err)
		}
		_ = json.Unmarshal([]byte(allowedJSON), &r.AllowedTools)
		_ = json.Unmarshal([]byte(disallowedJSON), &r.DisallowedTools)
		p.Roles = append(p.Roles, r)
	}
	roleRows.Close()
	if err := roleRows.Err(); err != nil {
		return errs.NewStorageError("store.fillProject", err)
	}

	mcpRows, err := s.db.Query(`SELECT name, command, args, env FROM project_mcp_servers WHERE project_id = ? ORDER BY name`, p.ID.String())
	if err != nil {
		return errs.NewStorageError("store.fillProject", err)
	}
	defer mcpRows.Close()
	for mcpRows.Next() {
		var m model.McpServerConfig
		var argsJSON, envJSON string
		if err := mcpRows.Scan(&m.Name, &m.Command, &argsJSON, &envJSON); err != nil {
			return errs.NewStorageError("store.fillProject", err)
		}
		_ = json.Unmarshal([]byte(argsJSON), &m.Args)
		_ = json.Unmarshal([]byte(envJSON), &m.Env)
		p.McpServers = append(p.McpServers, m)
	}
	return mcpRows.Err()
}

func replaceRepos(tx *sql.Tx, projectID uuid.UUID, repos []string) error {
	if _, err := tx.Exec(`DELETE FROM project_repos WHERE project_id = ?`, projectID.String()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO project_repos (project_id, repo_path, sort_order) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, path := range repos {
		if _, err := stmt.Exec(projectID.String(), path, i); err != nil {
			return err
		}
	}
	return nil
}

// replaceRoles deletes and re-inserts the role set atomically (spec.md
// §4.1 "Roles and MCP servers are replaced atomically").
func replaceRoles(tx *sql.Tx, projectID uuid.UUID, roles []model.Role) error {
	if _, err := tx.Exec(`DELETE FROM project_roles WHERE project_id = ?`, projectID.String()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO project_roles (project_id, name, description, permission_mode, allowed_tools, disallowed_tools, tools_string, append_system_prompt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range roles {
		allowedJSON, _ := json.Marshal(r.AllowedTools)
		disallowedJSON, _ := json.Marshal(r.DisallowedTools)
		if _, err := stmt.Exec(projectID.String(), r.Name, r.Description, r.PermissionMode, string(allowedJSON), string(disallowedJSON), r.ToolsString, r.AppendSystemPrompt); err != nil {
			return err
		}
	}
	return nil
}

func replaceMcpServers(tx *sql.Tx, projectID uuid.UUID, servers []model.McpServerConfig) error {
	if _, err := tx.Exec(`DELETE FROM project_mcp_servers WHERE project_id = ?`, projectID.String()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO project_mcp_servers (project_id, name, command, args, env) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range servers {
		argsJSON, _ := json.Marshal(m.Args)
		envJSON, _ := json.Marshal(m.Env)
		if _, err := stmt.Exec(projectID.String(), m.Name, m.Command, string(argsJSON), string(envJSON)); err != nil {
			return err
		}
	}
	return nil
}
