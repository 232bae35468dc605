package schema

import "github.com/dev-console/agentsandbox/internal/mcp"

// ListToolSchema describes the `list` operation (spec §4.8, §6): enumerates
// registered adapters and named tasks, returning counts and sampled entries.
func ListToolSchema() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "list",
		Description: "Enumerate registered adapters, adapter methods, and named tasks available to sandboxed code.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"truncate": map[string]any{
					"type":        "boolean",
					"description": "Whether to cap the number of sampled entries returned (default true).",
				},
				"max_items": map[string]any{
					"type":        "integer",
					"description": "Max entries sampled per category.",
				},
			},
		},
	}
}
