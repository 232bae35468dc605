// timeout.go — Per-request timeout logic for MCP tool calls.
package bridge

import (
	"encoding/json"
	"time"
)

// Timeout constants for different tool categories.
const (
	FastTimeout    = 10 * time.Second
	SlowTimeout    = 35 * time.Second
	BlockingPoll   = 65 * time.Second
)

// ToolCallTimeout returns the per-request timeout based on the MCP method
// and tool name. `list` and `search` are pure in-memory lookups and get
// FastTimeout; `execute` and `run-named-task` spawn a worker and must be
// bounded by at least the sandbox's own configured timeout, so their
// transport-level timeout is SlowTimeout unless the request's own
// sandbox config asks for longer (the orchestrator's per-run timer, not
// this value, is what's actually authoritative per spec §4.6 — this is
// only the outer transport-level ceiling).
//
// method is the JSON-RPC method (e.g. "tools/call", "resources/read").
// params is the raw JSON of the request params.
func ToolCallTimeout(method string, params json.RawMessage) time.Duration {
	if method == "resources/read" {
		return FastTimeout
	}
	if method != "tools/call" {
		return FastTimeout
	}

	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if json.Unmarshal(params, &p) != nil {
		return FastTimeout
	}

	switch p.Name {
	case "execute", "run-named-task":
		var args struct {
			TimeoutMs int `json:"timeout_ms"`
		}
		if json.Unmarshal(p.Arguments, &args) == nil && args.TimeoutMs > 0 {
			requested := time.Duration(args.TimeoutMs) * time.Millisecond
			if requested > SlowTimeout {
				return requested
			}
		}
		return SlowTimeout
	case "list", "search":
		return FastTimeout
	default:
		return FastTimeout
	}
}

// ExtractToolAction extracts the tool name and action parameter from a tools/call request.
// Returns empty strings for non-tools/call methods or if parsing fails.
func ExtractToolAction(method string, params json.RawMessage) (toolName, action string) {
	if method != "tools/call" {
		return "", ""
	}
	var p struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"arguments"`
	}
	if json.Unmarshal(params, &p) != nil {
		return "", ""
	}
	var a struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(p.Args, &a)
	return p.Name, a.Action
}
