package sync

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/agentpane/paneboard/internal/model"
)

func mkSession(id uuid.UUID, name string) sessionSnapshot {
	return sessionSnapshot{Session: model.Session{ID: id, DisplayName: name, BackendType: "local-mux"}}
}

func TestComputeSessionDelta_Added(t *testing.T) {
	id := uuid.New()
	old := map[uuid.UUID]sessionSnapshot{}
	new := map[uuid.UUID]sessionSnapshot{id: mkSession(id, "Session 1")}

	d := computeSessionDelta(old, new)
	assert.Len(t, d.Added, 1)
	assert.Empty(t, d.Removed)
	assert.Empty(t, d.Updated)
	assert.Equal(t, "Session 1", d.Added[0].DisplayName)
}

func TestComputeSessionDelta_Removed(t *testing.T) {
	id := uuid.New()
	old := map[uuid.UUID]sessionSnapshot{id: mkSession(id, "Session 1")}
	new := map[uuid.UUID]sessionSnapshot{}

	d := computeSessionDelta(old, new)
	assert.Empty(t, d.Added)
	assert.Equal(t, []uuid.UUID{id}, d.Removed)
	assert.Empty(t, d.Updated)
}

func TestComputeSessionDelta_Updated(t *testing.T) {
	id := uuid.New()
	old := map[uuid.UUID]sessionSnapshot{id: mkSession(id, "Session 1")}
	new := map[uuid.UUID]sessionSnapshot{id: mkSession(id, "Renamed")}

	d := computeSessionDelta(old, new)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	assert.Len(t, d.Updated, 1)
	assert.Equal(t, "Renamed", d.Updated[0].DisplayName)
}

func TestComputeSessionDelta_UnchangedIsNoOp(t *testing.T) {
	id := uuid.New()
	snap := mkSession(id, "Session 1")
	old := map[uuid.UUID]sessionSnapshot{id: snap}
	new := map[uuid.UUID]sessionSnapshot{id: snap}

	d := computeSessionDelta(old, new)
	assert.True(t, d.Empty())
}

func TestComputeSessionDelta_WorktreeFingerprintChangeIsUpdate(t *testing.T) {
	id := uuid.New()
	a := mkSession(id, "Session 1")
	b := mkSession(id, "Session 1")
	b.worktreeFingerprint = "repo=branch:/path"

	d := computeSessionDelta(map[uuid.UUID]sessionSnapshot{id: a}, map[uuid.UUID]sessionSnapshot{id: b})
	assert.Len(t, d.Updated, 1)
}

func TestComputeSessionDelta_Idempotent(t *testing.T) {
	id := uuid.New()
	old := map[uuid.UUID]sessionSnapshot{id: mkSession(id, "A")}
	new := map[uuid.UUID]sessionSnapshot{id: mkSession(id, "B")}

	d1 := computeSessionDelta(old, new)
	d2 := computeSessionDelta(old, new)
	assert.Equal(t, d1, d2)
}

func TestComputeProjectDelta_AddedRemovedUpdated(t *testing.T) {
	addedID, removedID, updatedID := uuid.New(), uuid.New(), uuid.New()

	old := map[uuid.UUID]model.Project{
		removedID: {ID: removedID, DisplayName: "gone"},
		updatedID: {ID: updatedID, DisplayName: "old-name"},
	}
	new := map[uuid.UUID]model.Project{
		addedID:   {ID: addedID, DisplayName: "new"},
		updatedID: {ID: updatedID, DisplayName: "new-name"},
	}

	d := computeProjectDelta(old, new)
	assert.Len(t, d.Added, 1)
	assert.Equal(t, []uuid.UUID{removedID}, d.Removed)
	assert.Len(t, d.Updated, 1)
	assert.Equal(t, "new-name", d.Updated[0].DisplayName)
}

func TestProjectEqual_RoleChangeIsNotEqual(t *testing.T) {
	a := model.Project{DisplayName: "p", Roles: []model.Role{{Name: "r1"}}}
	b := model.Project{DisplayName: "p", Roles: []model.Role{{Name: "r2"}}}
	assert.False(t, projectEqual(a, b))
}

func TestDelta_Empty(t *testing.T) {
	assert.True(t, Delta{}.Empty())
	assert.False(t, Delta{Sessions: SessionDelta{Added: []model.Session{{}}}}.Empty())
}
