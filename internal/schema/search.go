package schema

import "github.com/dev-console/agentsandbox/internal/mcp"

// SearchToolSchema describes the `search` operation (spec §4.8, §6):
// case-insensitive substring search over adapter/method/task names and
// descriptions, emitting TypeScript-like method signatures.
func SearchToolSchema() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "search",
		Description: "Case-insensitive substring search over adapter, method, and named-task names and descriptions.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Substring to search for.",
				},
				"type": map[string]any{
					"type":        "string",
					"enum":        []string{"all", "adapters", "methods", "tasks"},
					"description": "Restrict results to one category (default all).",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Max matches returned.",
				},
			},
			"required": []string{"query"},
		},
	}
}
