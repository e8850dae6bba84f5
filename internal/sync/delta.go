package sync

import (
	"reflect"
	"slices"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/model"
)

// sessionSnapshot is a session plus a fingerprint of its worktree set, the
// last of the tracked fields spec.md §4.5 names ("name, role, project_id,
// backend_id, backend_type, resume token, cwd, additional directories,
// worktree set").
type sessionSnapshot struct {
	model.Session
	worktreeFingerprint string
}

func sessionEqual(a, b sessionSnapshot) bool {
	return a.DisplayName == b.DisplayName &&
		a.ProjectID == b.ProjectID &&
		a.RoleName == b.RoleName &&
		a.BackendID == b.BackendID &&
		a.BackendType == b.BackendType &&
		a.ResumeToken == b.ResumeToken &&
		a.Cwd == b.Cwd &&
		slices.Equal(a.AdditionalDirs, b.AdditionalDirs) &&
		a.worktreeFingerprint == b.worktreeFingerprint
}

// SessionDelta is the result of diffing two session snapshots (spec.md
// §4.5 "Added/Removed/Updated").
type SessionDelta struct {
	Added   []model.Session
	Removed []uuid.UUID
	Updated []model.Session
}

// Empty reports whether the delta carries no changes at all.
func (d SessionDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// computeSessionDelta is a pure function over two keyed snapshots: present
// in new but not old is Added, present in both with a tracked field
// difference is Updated, present in old but not new is Removed. Applying
// the same two snapshots twice yields an identical delta (spec.md §4.5
// "Idempotence").
func computeSessionDelta(old, new map[uuid.UUID]sessionSnapshot) SessionDelta {
	var d SessionDelta
	for id, ns := range new {
		os, existed := old[id]
		if !existed {
			d.Added = append(d.Added, ns.Session)
			continue
		}
		if !sessionEqual(os, ns) {
			d.Updated = append(d.Updated, ns.Session)
		}
	}
	for id := range old {
		if _, stillPresent := new[id]; !stillPresent {
			d.Removed = append(d.Removed, id)
		}
	}
	return d
}

func projectEqual(a, b model.Project) bool {
	return a.DisplayName == b.DisplayName &&
		slices.Equal(a.RepoPaths, b.RepoPaths) &&
		reflect.DeepEqual(a.Roles, b.Roles) &&
		reflect.DeepEqual(a.McpServers, b.McpServers) &&
		a.IsDefault == b.IsDefault
}

// ProjectDelta mirrors SessionDelta for the project set.
type ProjectDelta struct {
	Added   []model.Project
	Removed []uuid.UUID
	Updated []model.Project
}

// Empty reports whether the delta carries no changes at all.
func (d ProjectDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

func computeProjectDelta(old, new map[uuid.UUID]model.Project) ProjectDelta {
	var d ProjectDelta
	for id, np := range new {
		op, existed := old[id]
		if !existed {
			d.Added = append(d.Added, np)
			continue
		}
		if !projectEqual(op, np) {
			d.Updated = append(d.Updated, np)
		}
	}
	for id := range old {
		if _, stillPresent := new[id]; !stillPresent {
			d.Removed = append(d.Removed, id)
		}
	}
	return d
}

// Delta bundles both keyed diffs produced by one poll (spec.md §4.5 "the
// in-memory session/project set").
type Delta struct {
	Sessions SessionDelta
	Projects ProjectDelta
}

// Empty reports whether neither half of the delta carries any change.
func (d Delta) Empty() bool { return d.Sessions.Empty() && d.Projects.Empty() }
