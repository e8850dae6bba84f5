package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentpane/paneboard/internal/model"
	"github.com/agentpane/paneboard/internal/store"
)

// registerTools wires every admin tool spec.md §6 names onto srv, each
// handler reusing st directly rather than going through a running
// AppController (spec.md §6: "operates on the database directly ... works
// even if no paneboard TUI instance is currently running").
func registerTools(srv *server.MCPServer, st *store.Store) {
	srv.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List active projects; soft-deleted ones are included only when include_deleted is true."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithBoolean("include_deleted",
				mcp.Description("Include soft-deleted projects (default: false)"),
			),
		),
		handleListProjects(st),
	)

	srv.AddTool(
		mcp.NewTool("get_project",
			mcp.WithDescription("Fetch one project by id, with its repo paths, roles, and MCP server configs."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
		),
		handleGetProject(st),
	)

	srv.AddTool(
		mcp.NewTool("create_project",
			mcp.WithDescription("Create a new project."),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("display_name", mcp.Required(), mcp.Description("Human-readable project name")),
			mcp.WithString("repo_paths_json", mcp.Description("JSON array of absolute repo paths")),
			mcp.WithBoolean("is_default", mcp.Description("Mark this project as the default (default: false)")),
		),
		handleCreateProject(st),
	)

	srv.AddTool(
		mcp.NewTool("update_project",
			mcp.WithDescription("Update a project's display name, default flag, and/or repo paths. Fields left unset keep their current value; repo_paths_json, if given, replaces the repo path list entirely."),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
			mcp.WithString("display_name", mcp.Description("New display name")),
			mcp.WithString("repo_paths_json", mcp.Description("JSON array of absolute repo paths, replacing the current list")),
			mcp.WithBoolean("is_default", mcp.Description("New default flag")),
		),
		handleUpdateProject(st),
	)

	srv.AddTool(
		mcp.NewTool("delete_project",
			mcp.WithDescription("Soft-delete a project."),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
		),
		handleDeleteProject(st),
	)

	srv.AddTool(
		mcp.NewTool("list_roles",
			mcp.WithDescription("List the roles defined on a project."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
		),
		handleListRoles(st),
	)

	srv.AddTool(
		mcp.NewTool("set_roles",
			mcp.WithDescription("Replace a project's entire role set. roles_json is a JSON array of role objects (name required; description, permission_mode, allowed_tools, disallowed_tools, tools_string, append_system_prompt optional)."),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
			mcp.WithString("roles_json", mcp.Required(), mcp.Description("JSON array of role objects")),
		),
		handleSetRoles(st),
	)

	srv.AddTool(
		mcp.NewTool("list_mcp_servers",
			mcp.WithDescription("List the MCP server configs defined on a project."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
		),
		handleListMcpServers(st),
	)

	srv.AddTool(
		mcp.NewTool("set_mcp_servers",
			mcp.WithDescription("Replace a project's entire MCP server config set. mcp_servers_json is a JSON array of server objects (name and command required; args, env optional)."),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project UUID")),
			mcp.WithString("mcp_servers_json", mcp.Required(), mcp.Description("JSON array of MCP server config objects")),
		),
		handleSetMcpServers(st),
	)

	srv.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List active sessions, optionally filtered to one project; soft-deleted ones are included only when include_deleted is true."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("project_id", mcp.Description("Restrict to sessions under this project UUID")),
			mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted sessions (default: false)")),
		),
		handleListSessions(st),
	)
}

func argString(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return v
}

func argBool(req mcp.CallToolRequest, key string, def bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return def
	}
	return v
}

func parseProjectID(req mcp.CallToolRequest) (uuid.UUID, error) {
	id, err := uuid.Parse(argString(req, "project_id"))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid project_id: %w", err)
	}
	return id, nil
}

func projectResultJSON(p *model.Project) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return mcp.NewToolResultError("marshal project: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func handleListProjects(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			projects []*model.Project
			err      error
		)
		if argBool(req, "include_deleted", false) {
			projects, err = st.ListAllProjects()
		} else {
			projects, err = st.ListActiveProjects()
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := json.Marshal(projects)
		if err != nil {
			return mcp.NewToolResultError("marshal projects: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

func handleGetProject(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := st.GetProject(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return projectResultJSON(p)
	}
}

func handleCreateProject(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		displayName := argString(req, "display_name")
		if displayName == "" {
			return mcp.NewToolResultError("display_name is required"), nil
		}
		var repoPaths []string
		if raw := argString(req, "repo_paths_json"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &repoPaths); err != nil {
				return mcp.NewToolResultError("repo_paths_json: " + err.Error()), nil
			}
		}
		p := &model.Project{
			ID:          model.NewProjectID(displayName),
			DisplayName: displayName,
			RepoPaths:   repoPaths,
			IsDefault:   argBool(req, "is_default", false),
		}
		if err := st.CreateProject(p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return projectResultJSON(p)
	}
}

func handleUpdateProject(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := st.GetProject(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if v := argString(req, "display_name"); v != "" {
			p.DisplayName = v
		}
		if raw := argString(req, "repo_paths_json"); raw != "" {
			var repoPaths []string
			if err := json.Unmarshal([]byte(raw), &repoPaths); err != nil {
				return mcp.NewToolResultError("repo_paths_json: " + err.Error()), nil
			}
			p.RepoPaths = repoPaths
		}
		if _, ok := req.GetArguments()["is_default"]; ok {
			p.IsDefault = argBool(req, "is_default", p.IsDefault)
		}
		if err := st.UpdateProject(p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return projectResultJSON(p)
	}
}

func handleDeleteProject(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := st.SoftDeleteProject(id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("project %s deleted", id)), nil
	}
}

func handleListRoles(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := st.GetProject(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := json.Marshal(p.Roles)
		if err != nil {
			return mcp.NewToolResultError("marshal roles: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

func handleSetRoles(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var roles []model.Role
		if err := json.Unmarshal([]byte(argString(req, "roles_json")), &roles); err != nil {
			return mcp.NewToolResultError("roles_json: " + err.Error()), nil
		}
		for _, r := range roles {
			if err := validateRole(r); err != nil {
				return mcp.NewToolResultError("invalid role: " + err.Error()), nil
			}
		}
		p, err := st.GetProject(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.Roles = roles
		if err := st.UpdateProject(p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d roles set on project %s", len(roles), id)), nil
	}
}

func handleListMcpServers(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := st.GetProject(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := json.Marshal(p.McpServers)
		if err != nil {
			return mcp.NewToolResultError("marshal mcp servers: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

func handleSetMcpServers(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := parseProjectID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var servers []model.McpServerConfig
		if err := json.Unmarshal([]byte(argString(req, "mcp_servers_json")), &servers); err != nil {
			return mcp.NewToolResultError("mcp_servers_json: " + err.Error()), nil
		}
		for _, m := range servers {
			if err := validateMcpServerConfig(m); err != nil {
				return mcp.NewToolResultError("invalid mcp server config: " + err.Error()), nil
			}
		}
		p, err := st.GetProject(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.McpServers = servers
		if err := st.UpdateProject(p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d MCP server configs set on project %s", len(servers), id)), nil
	}
}

func handleListSessions(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			sessions []*model.Session
			err      error
		)
		if argBool(req, "include_deleted", false) {
			sessions, err = st.ListAllSessions()
		} else {
			sessions, err = st.ListActiveSessions()
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if pidRaw := argString(req, "project_id"); pidRaw != "" {
			pid, err := uuid.Parse(pidRaw)
			if err != nil {
				return mcp.NewToolResultError("invalid project_id: " + err.Error()), nil
			}
			filtered := sessions[:0]
			for _, s := range sessions {
				if s.ProjectID == pid {
					filtered = append(filtered, s)
				}
			}
			sessions = filtered
		}
		b, err := json.Marshal(sessions)
		if err != nil {
			return mcp.NewToolResultError("marshal sessions: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}
