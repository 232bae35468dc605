package schema

import "github.com/dev-console/agentsandbox/internal/mcp"

// ExecuteToolSchema describes the `execute` operation (spec §4.8, §6):
// runs a snippet through normalization, analysis, and a worker, returning a
// textual summary plus the structured ExecutionResult.
func ExecuteToolSchema() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "execute",
		Description: "Run a JavaScript snippet in an isolated sandbox and return its value, console logs, and execution time.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "JavaScript source. A bare expression or statement list is auto-wrapped with a return; use await freely.",
				},
				"timeout_ms": map[string]any{
					"type":        "integer",
					"description": "Per-run timeout override in milliseconds.",
				},
				"truncate": map[string]any{
					"type":        "boolean",
					"description": "Whether to apply output-size ceilings to the returned value (default true).",
				},
				"max_items": map[string]any{
					"type":        "integer",
					"description": "Max array/object items per nesting level in the summarized output.",
				},
				"max_string_length": map[string]any{
					"type":        "integer",
					"description": "Max characters per string in the summarized output.",
				},
			},
			"required": []string{"code"},
		},
	}
}
