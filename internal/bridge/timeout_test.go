// timeout_test.go — Tests for ToolCallTimeout and ExtractToolAction.
package bridge

import (
	"encoding/json"
	"testing"
	"time"
)

func TestToolCallTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		method   string
		params   string
		expected time.Duration
	}{
		{"ping gets fast timeout", "ping", `{}`, FastTimeout},
		{"resources/read gets fast timeout", "resources/read", `{}`, FastTimeout},
		{"tools/list gets fast timeout", "tools/list", `{}`, FastTimeout},
		{"list gets fast timeout", "tools/call", `{"name":"list","arguments":{}}`, FastTimeout},
		{"search gets fast timeout", "tools/call", `{"name":"search","arguments":{"query":"x"}}`, FastTimeout},
		{"execute gets slow timeout", "tools/call", `{"name":"execute","arguments":{"code":"1+1"}}`, SlowTimeout},
		{"run-named-task gets slow timeout", "tools/call", `{"name":"run-named-task","arguments":{"name":"t"}}`, SlowTimeout},
		{"execute honors a longer requested timeout", "tools/call", `{"name":"execute","arguments":{"code":"1+1","timeout_ms":60000}}`, 60 * time.Second},
		{"execute ignores a shorter requested timeout", "tools/call", `{"name":"execute","arguments":{"code":"1+1","timeout_ms":100}}`, SlowTimeout},
		{"malformed params gets fast timeout", "tools/call", `{bad json}`, FastTimeout},
		{"unknown tool gets fast timeout", "tools/call", `{"name":"unknown_tool","arguments":{}}`, FastTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ToolCallTimeout(tc.method, json.RawMessage(tc.params))
			if got != tc.expected {
				t.Errorf("ToolCallTimeout(%s, %s) = %v, want %v", tc.method, tc.params, got, tc.expected)
			}
		})
	}
}

func TestExtractToolAction(t *testing.T) {
	t.Parallel()

	t.Run("non-tools/call returns empty", func(t *testing.T) {
		name, action := ExtractToolAction("ping", json.RawMessage(`{}`))
		if name != "" || action != "" {
			t.Errorf("expected empty, got name=%q action=%q", name, action)
		}
	})

	t.Run("tools/call with action", func(t *testing.T) {
		name, action := ExtractToolAction("tools/call", json.RawMessage(`{"name":"run-named-task","arguments":{"action":"retry"}}`))
		if name != "run-named-task" || action != "retry" {
			t.Errorf("expected run-named-task/retry, got name=%q action=%q", name, action)
		}
	})

	t.Run("malformed params", func(t *testing.T) {
		name, action := ExtractToolAction("tools/call", json.RawMessage(`{bad`))
		if name != "" || action != "" {
			t.Errorf("expected empty for malformed, got name=%q action=%q", name, action)
		}
	})
}
