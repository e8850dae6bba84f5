// Package model defines the entities of spec.md §3: Project, Role,
// McpServerConfig, Session, Worktree, AuditEntry. These are plain value
// types shared by the store, sync engine, and controller — no behavior
// beyond what the invariants require lives here.
package model

import (
	"time"

	"github.com/google/uuid"
)

// paneboardNamespace is the fixed namespace UUID used to derive
// deterministic ProjectIds from a project's display name (spec.md §3, §9:
// "Deterministic project ids"). Any two instances that see the same
// configured name compute the same id without coordination.
var paneboardNamespace = uuid.MustParse("8f14e45f-ceea-467e-88b0-5b0f2a1d6c7a")

// NewProjectID derives a ProjectId deterministically from a display name.
func NewProjectID(displayName string) uuid.UUID {
	return uuid.NewSHA1(paneboardNamespace, []byte(displayName))
}

// NewSessionID returns a fresh random SessionId.
func NewSessionID() uuid.UUID {
	return uuid.New()
}

// Role is a named bundle of agent-permission flags applied when launching
// an agent process for a session (spec.md §3).
type Role struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	PermissionMode     string   `json:"permission_mode"` // empty = unset; not read when a session is spawned
	AllowedTools       []string `json:"allowed_tools"`
	DisallowedTools    []string `json:"disallowed_tools"`
	ToolsString        string   `json:"tools_string"`
	AppendSystemPrompt string   `json:"append_system_prompt"`
}

// McpServerConfig is a named MCP server launch definition attached to a
// project.
type McpServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Project is a named grouping of one or more repo paths plus a role set and
// MCP-server-config set (spec.md §3).
type Project struct {
	ID          uuid.UUID
	DisplayName string
	RepoPaths   []string
	Roles       []Role
	McpServers  []McpServerConfig
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Active reports whether the project is not soft-deleted.
func (p *Project) Active() bool { return p.DeletedAt == nil }

// RoleByName returns the role with the given name, or nil.
func (p *Project) RoleByName(name string) *Role {
	for i := range p.Roles {
		if p.Roles[i].Name == name {
			return &p.Roles[i]
		}
	}
	return nil
}

// Session is a view binding one mux pane to metadata persisted in the
// database (spec.md §3).
type Session struct {
	ID                uuid.UUID
	DisplayName       string
	ProjectID         uuid.UUID
	RoleName          string
	BackendID         string // mux-assigned pane identifier
	BackendType       string // "local-mux" today
	ResumeToken       string
	Cwd               string
	AdditionalDirs    []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	TombstoneAt       *time.Time
	Terminated        bool // in-memory only: set on load when BackendID is empty, or when no live pane is found
}

// Active reports whether the session is not soft-deleted.
func (s *Session) Active() bool { return s.DeletedAt == nil }

// Tombstoned reports whether the session carries a tombstone.
func (s *Session) Tombstoned() bool { return s.TombstoneAt != nil }

// Worktree is a per-session, per-repo git auxiliary working copy (spec.md §3).
type Worktree struct {
	SessionID    uuid.UUID
	RepoPath     string
	WorktreePath string
	Branch       string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// AuditAction enumerates the actions an AuditEntry can record.
type AuditAction string

const (
	AuditCreated  AuditAction = "created"
	AuditUpdated  AuditAction = "updated"
	AuditDeleted  AuditAction = "deleted"
	AuditRestored AuditAction = "restored"
)

// EntityType enumerates the entities an AuditEntry can reference.
type EntityType string

const (
	EntityProject  EntityType = "project"
	EntitySession  EntityType = "session"
	EntityWorktree EntityType = "worktree"
)

// AuditEntry is one append-only row in the audit log (spec.md §3).
type AuditEntry struct {
	ID          int64
	Timestamp   time.Time
	EntityType  EntityType
	EntityID    string
	Action      AuditAction
	Field       string
	OldValue    string
	NewValue    string
	InstanceID  uuid.UUID
}
