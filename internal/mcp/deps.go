// deps.go — Composable dependency interfaces for MCP operation handlers.
// Each operation handler defines its own Deps interface by embedding these
// sub-interfaces. *server.Server satisfies all of them with zero code changes.
package mcp

// DiagnosticProvider supplies system state snapshots for error messages.
// Used by all operations to attach "Current state: adapters=3, skills=1, ..."
// hints to structured errors.
type DiagnosticProvider interface {
	DiagnosticHintString() string
}
