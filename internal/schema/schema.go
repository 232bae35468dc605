// schema.go — MCP tool schema assembler.
// Pure data — returns MCPTool structs with zero runtime dependencies.
package schema

import "github.com/dev-console/agentsandbox/internal/mcp"

// AllTools returns all MCP tool definitions (spec §4.8 operation surface).
func AllTools() []mcp.MCPTool {
	return []mcp.MCPTool{
		ExecuteToolSchema(),
		ListToolSchema(),
		SearchToolSchema(),
		RunNamedTaskToolSchema(),
	}
}
