package schema

import "github.com/dev-console/agentsandbox/internal/mcp"

// RunNamedTaskToolSchema describes the `run-named-task` operation (spec
// §4.8, §6): resolves a host-registered named task (a skill) with a
// per-task timeout, returning its output under the same summarization
// rules as execute.
func RunNamedTaskToolSchema() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "run-named-task",
		Description: "Run a host-registered named task by name, passing structured inputs, and return its output.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Registered named-task name.",
				},
				"inputs": map[string]any{
					"type":        "object",
					"description": "Input record passed to the task.",
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
			"required": []string{"name"},
		},
	}
}
