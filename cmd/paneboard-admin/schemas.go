package main

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/agentpane/paneboard/internal/model"
)

// roleSchema and mcpServerSchema describe the two struct shapes the admin
// tools accept as JSON-encoded string parameters (mark3labs/mcp-go has no
// array/object parameter builder in this pack, so set_roles/set_mcp_servers
// take a JSON array string instead). Built the way the pack's MCP tool
// definitions build theirs: a struct literal, not reflection.
var roleSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"name":                 {Type: "string"},
		"description":          {Type: "string"},
		"permission_mode":      {Type: "string"},
		"allowed_tools":        {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		"disallowed_tools":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		"tools_string":         {Type: "string"},
		"append_system_prompt": {Type: "string"},
	},
	Required: []string{"name"},
}

var mcpServerSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"name":    {Type: "string"},
		"command": {Type: "string"},
		"args":    {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		"env":     {Type: "object"},
	},
	Required: []string{"name", "command"},
}

// validateAgainst checks v's required fields against schema without pulling
// in a full validator dependency; it covers the one thing hand-decoded JSON
// can get wrong that encoding/json itself won't catch: a required field left
// as its zero value.
func validateAgainst(schema *jsonschema.Schema, required map[string]string) error {
	for _, name := range schema.Required {
		if required[name] == "" {
			return fmt.Errorf("field %q is required", name)
		}
	}
	return nil
}

// validateRole checks r against roleSchema's required fields.
func validateRole(r model.Role) error {
	return validateAgainst(roleSchema, map[string]string{"name": r.Name})
}

// validateMcpServerConfig checks m against mcpServerSchema's required fields.
func validateMcpServerConfig(m model.McpServerConfig) error {
	return validateAgainst(mcpServerSchema, map[string]string{
		"name":    m.Name,
		"command": m.Command,
	})
}
