package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dev-console/agentsandbox/internal/audit"
	"github.com/dev-console/agentsandbox/internal/config"
	"github.com/dev-console/agentsandbox/internal/mcp"
	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/redaction"
	"github.com/dev-console/agentsandbox/internal/registry"
	"github.com/dev-console/agentsandbox/internal/rules"
	"github.com/dev-console/agentsandbox/internal/sandbox"
	"github.com/dev-console/agentsandbox/internal/tasks"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New(nil)
	reg.Register(model.Adapter{
		Name:        "api",
		Description: "sample http-backed adapter",
		Methods: map[string]model.AdapterMethodDescriptor{
			"getData": {
				Name:        "getData",
				Description: "fetches a record by id",
				Parameters:  map[string]model.ParamSchema{"id": {Type: model.ParamNumber, Required: true}},
				Execute:     func(params json.RawMessage) (any, error) { return map[string]any{"id": 1}, nil },
			},
		},
	})

	taskReg := tasks.New()
	taskReg.Register(model.NamedTask{
		Name:        "greet",
		Description: "returns a greeting",
		Run: func(tc model.TaskContext) (any, error) {
			name, _ := tc.Inputs["name"].(string)
			return "hello " + name, nil
		},
	})

	engine := rules.NewEngine(rules.BuiltinRules())
	orch := sandbox.New(engine, reg, reg, nil, nil)
	trail := audit.NewAuditTrail(audit.AuditConfig{})
	redactionEngine := redaction.NewRedactionEngine("")

	return New(reg, taskReg, orch, trail, redactionEngine, config.Default(), "test", nil)
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) mcp.JSONRPCResponse {
	t.Helper()
	argBytes, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	params, err := json.Marshal(map[string]any{"name": name, "arguments": json.RawMessage(argBytes)})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "tools/call", Params: params}
	resp := s.HandleRequest(context.Background(), req)
	if resp == nil {
		t.Fatalf("expected a response for tools/call")
	}
	return *resp
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := newTestServer(t)
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "initialize"}
	resp := s.HandleRequest(context.Background(), req)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	var result mcp.MCPInitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		t.Fatalf("got protocol version %q", result.ProtocolVersion)
	}
}

func TestHandleRequest_Notification(t *testing.T) {
	s := newTestServer(t)
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"}
	if resp := s.HandleRequest(context.Background(), req); resp != nil {
		t.Fatalf("expected nil response for a notification, got %+v", resp)
	}
}

func TestHandleRequest_UnknownMethod(t *testing.T) {
	s := newTestServer(t)
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "nonsense/method"}
	resp := s.HandleRequest(context.Background(), req)
	if resp == nil || resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %+v", resp)
	}
}

func TestHandleRequest_ToolsList(t *testing.T) {
	s := newTestServer(t)
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "tools/list"}
	resp := s.HandleRequest(context.Background(), req)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	var result mcp.MCPToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Tools) == 0 {
		t.Fatalf("expected at least one tool")
	}
}

func TestToolExecute_Success(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "execute", map[string]any{"code": "1 + 1"})
	if resp.Error != nil {
		t.Fatalf("unexpected protocol error: %+v", resp.Error)
	}
	var toolResult mcp.MCPToolResult
	if err := json.Unmarshal(resp.Result, &toolResult); err != nil {
		t.Fatalf("unmarshal tool result: %v", err)
	}
	if toolResult.IsError {
		t.Fatalf("expected success, got error result: %+v", toolResult)
	}
}

func TestToolExecute_MissingCode(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "execute", map[string]any{})
	var toolResult mcp.MCPToolResult
	if err := json.Unmarshal(resp.Result, &toolResult); err != nil {
		t.Fatalf("unmarshal tool result: %v", err)
	}
	if !toolResult.IsError {
		t.Fatalf("expected a structured error for missing code")
	}
}

func TestToolList(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "list", map[string]any{})
	if resp.Error != nil {
		t.Fatalf("unexpected protocol error: %+v", resp.Error)
	}
}

func TestToolSearch_RequiresQuery(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "search", map[string]any{})
	var toolResult mcp.MCPToolResult
	if err := json.Unmarshal(resp.Result, &toolResult); err != nil {
		t.Fatalf("unmarshal tool result: %v", err)
	}
	if !toolResult.IsError {
		t.Fatalf("expected a structured error for missing query")
	}
}

func TestToolSearch_FindsAdapterMethod(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "search", map[string]any{"query": "getData"})
	if resp.Error != nil {
		t.Fatalf("unexpected protocol error: %+v", resp.Error)
	}
}

func TestToolRunNamedTask_Success(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "run-named-task", map[string]any{"name": "greet", "inputs": map[string]any{"name": "world"}})
	if resp.Error != nil {
		t.Fatalf("unexpected protocol error: %+v", resp.Error)
	}
	var toolResult mcp.MCPToolResult
	if err := json.Unmarshal(resp.Result, &toolResult); err != nil {
		t.Fatalf("unmarshal tool result: %v", err)
	}
	if toolResult.IsError {
		t.Fatalf("expected success, got error result: %+v", toolResult)
	}
}

func TestToolRunNamedTask_NotFound(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "run-named-task", map[string]any{"name": "does-not-exist"})
	var toolResult mcp.MCPToolResult
	if err := json.Unmarshal(resp.Result, &toolResult); err != nil {
		t.Fatalf("unmarshal tool result: %v", err)
	}
	if !toolResult.IsError {
		t.Fatalf("expected a structured error for an unregistered task")
	}
}

func TestHandleResourcesRead_Guide(t *testing.T) {
	s := newTestServer(t)
	params, _ := json.Marshal(map[string]any{"uri": guideResourceURI})
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "resources/read", Params: params}
	resp := s.HandleRequest(context.Background(), req)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleResourcesRead_Unknown(t *testing.T) {
	s := newTestServer(t)
	params, _ := json.Marshal(map[string]any{"uri": "sandboxmcp://nope"})
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "resources/read", Params: params}
	resp := s.HandleRequest(context.Background(), req)
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected an error for an unknown resource URI")
	}
}

// TestInitialize_CreatesRealAuditSession proves a client that calls
// initialize before tools/call gets its subsequent tool calls attributed to
// the real audit.SessionInfo created at initialize time (identified by
// clientInfo.name), rather than falling back to the raw transport ClientID.
func TestInitialize_CreatesRealAuditSession(t *testing.T) {
	s := newTestServer(t)

	initParams, _ := json.Marshal(map[string]any{"clientInfo": map[string]any{"name": "Claude-Code", "version": "1.0"}})
	initReq := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "initialize", Params: initParams, ClientID: "conn-1"}
	if resp := s.HandleRequest(context.Background(), initReq); resp == nil || resp.Error != nil {
		t.Fatalf("unexpected initialize response: %+v", resp)
	}

	sessionIDAny, ok := s.clientSessions.Load("conn-1")
	if !ok {
		t.Fatalf("expected initialize to record a session for conn-1")
	}
	sessionID := sessionIDAny.(string)
	sess := s.Audit.GetSession(sessionID)
	if sess == nil {
		t.Fatalf("expected a real SessionInfo for %q", sessionID)
	}
	if sess.ClientID != "claude-code" {
		t.Fatalf("expected normalized client name %q, got %q", "claude-code", sess.ClientID)
	}

	argBytes, _ := json.Marshal(map[string]any{"code": "1 + 1"})
	paramsBytes, _ := json.Marshal(map[string]any{"name": "execute", "arguments": json.RawMessage(argBytes)})
	callReq := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: "2", Method: "tools/call", Params: paramsBytes, ClientID: "conn-1"}
	if resp := s.HandleRequest(context.Background(), callReq); resp == nil || resp.Error != nil {
		t.Fatalf("unexpected tools/call response: %+v", resp)
	}

	sess = s.Audit.GetSession(sessionID)
	if sess == nil || sess.ToolCalls != 1 {
		t.Fatalf("expected one tool call recorded against the initialize session, got %+v", sess)
	}

	entries := s.Audit.Query(audit.AuditFilter{SessionID: sessionID})
	if len(entries) != 1 || entries[0].SessionID != sessionID {
		t.Fatalf("expected the audit entry to carry the real session ID, got %+v", entries)
	}
}

// TestToolCall_WithoutInitialize_LazilyCreatesSession covers a caller that
// never sends initialize (as every other test in this file does): recordAudit
// must still produce a queryable session instead of silently going dead.
func TestToolCall_WithoutInitialize_LazilyCreatesSession(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "execute", map[string]any{"code": "1 + 1"})
	if resp.Error != nil {
		t.Fatalf("unexpected protocol error: %+v", resp.Error)
	}

	sessionIDAny, ok := s.clientSessions.Load("")
	if !ok {
		t.Fatalf("expected a lazily-created session for the empty transport client ID")
	}
	sess := s.Audit.GetSession(sessionIDAny.(string))
	if sess == nil || sess.ToolCalls != 1 {
		t.Fatalf("expected the lazily-created session to have recorded one tool call, got %+v", sess)
	}
}
