package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpane/paneboard/internal/model"
	"github.com/agentpane/paneboard/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "paneboard.db")
	s, err := store.Open(dbPath, uuid.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func callReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestCreateAndGetProject(t *testing.T) {
	st := newTestStore(t)

	createRes, err := handleCreateProject(st)(context.Background(), callReq(map[string]any{
		"display_name":    "demo",
		"repo_paths_json": `["/repo/a","/repo/b"]`,
	}))
	require.NoError(t, err)
	require.False(t, createRes.IsError)

	projects, err := st.ListActiveProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "demo", projects[0].DisplayName)
	assert.Equal(t, []string{"/repo/a", "/repo/b"}, projects[0].RepoPaths)

	getRes, err := handleGetProject(st)(context.Background(), callReq(map[string]any{
		"project_id": projects[0].ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, getRes.IsError)
}

func TestCreateProject_MissingDisplayNameErrors(t *testing.T) {
	st := newTestStore(t)
	res, err := handleCreateProject(st)(context.Background(), callReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestUpdateProject_ReplacesRepoPaths(t *testing.T) {
	st := newTestStore(t)
	p := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo", RepoPaths: []string{"/old"}}
	require.NoError(t, st.CreateProject(p))

	res, err := handleUpdateProject(st)(context.Background(), callReq(map[string]any{
		"project_id":      p.ID.String(),
		"repo_paths_json": `["/new/a","/new/b"]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	got, err := st.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/new/a", "/new/b"}, got.RepoPaths)
}

func TestDeleteProject_SoftDeletesAndExcludesFromActiveList(t *testing.T) {
	st := newTestStore(t)
	p := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(p))

	res, err := handleDeleteProject(st)(context.Background(), callReq(map[string]any{
		"project_id": p.ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	active, err := st.ListActiveProjects()
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := st.ListAllProjects()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSetRoles_ReplacesRoleSetAndValidatesName(t *testing.T) {
	st := newTestStore(t)
	p := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(p))

	res, err := handleSetRoles(st)(context.Background(), callReq(map[string]any{
		"project_id": p.ID.String(),
		"roles_json": `[{"name":"reviewer","permission_mode":"default","allowed_tools":["Read","Grep"]}]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	got, err := st.GetProject(p.ID)
	require.NoError(t, err)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, "reviewer", got.Roles[0].Name)
	assert.Equal(t, []string{"Read", "Grep"}, got.Roles[0].AllowedTools)

	badRes, err := handleSetRoles(st)(context.Background(), callReq(map[string]any{
		"project_id": p.ID.String(),
		"roles_json": `[{"description":"no name"}]`,
	}))
	require.NoError(t, err)
	assert.True(t, badRes.IsError)
}

func TestSetMcpServers_ReplacesServerSetAndValidatesRequiredFields(t *testing.T) {
	st := newTestStore(t)
	p := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(p))

	res, err := handleSetMcpServers(st)(context.Background(), callReq(map[string]any{
		"project_id":       p.ID.String(),
		"mcp_servers_json": `[{"name":"exa","command":"exa-mcp","args":["--stdio"],"env":{"KEY":"v"}}]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	got, err := st.GetProject(p.ID)
	require.NoError(t, err)
	require.Len(t, got.McpServers, 1)
	assert.Equal(t, "exa-mcp", got.McpServers[0].Command)
	assert.Equal(t, map[string]string{"KEY": "v"}, got.McpServers[0].Env)

	badRes, err := handleSetMcpServers(st)(context.Background(), callReq(map[string]any{
		"project_id":       p.ID.String(),
		"mcp_servers_json": `[{"name":"exa"}]`,
	}))
	require.NoError(t, err)
	assert.True(t, badRes.IsError)
}

func TestListSessions_FiltersByProject(t *testing.T) {
	st := newTestStore(t)
	p1 := &model.Project{ID: model.NewProjectID("p1"), DisplayName: "p1"}
	p2 := &model.Project{ID: model.NewProjectID("p2"), DisplayName: "p2"}
	require.NoError(t, st.CreateProject(p1))
	require.NoError(t, st.CreateProject(p2))

	s1 := &model.Session{ID: model.NewSessionID(), DisplayName: "s1", ProjectID: p1.ID, BackendID: "%1", BackendType: "local-mux"}
	s2 := &model.Session{ID: model.NewSessionID(), DisplayName: "s2", ProjectID: p2.ID, BackendID: "%2", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(s1))
	require.NoError(t, st.UpsertSession(s2))

	res, err := handleListSessions(st)(context.Background(), callReq(map[string]any{
		"project_id": p1.ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := res.Content[0].(mcp.TextContent).Text
	var got []model.Session
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].DisplayName)
}
