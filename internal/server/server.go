// Package server implements C8, the request protocol surface: JSON-RPC 2.0
// dispatch for the MCP lifecycle methods (initialize, tools/list,
// resources/*) plus the four wire-stable operations (spec §4.8, §6):
// execute, list, search, run-named-task. Transport is handled separately
// by http.go (HTTP POST) and stdio.go (line/Content-Length framed stdio);
// both funnel every request through HandleRequest.
package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/audit"
	"github.com/dev-console/agentsandbox/internal/config"
	"github.com/dev-console/agentsandbox/internal/mcp"
	"github.com/dev-console/agentsandbox/internal/redaction"
	"github.com/dev-console/agentsandbox/internal/registry"
	"github.com/dev-console/agentsandbox/internal/sandbox"
	"github.com/dev-console/agentsandbox/internal/schema"
	"github.com/dev-console/agentsandbox/internal/tasks"
)

// ProtocolVersion is the MCP protocol version this server negotiates.
const ProtocolVersion = "2024-11-05"

// serverInstructions is sent once per session in the initialize response.
const serverInstructions = `This server runs JavaScript snippets in an isolated sandbox.

Tools:
- execute: run a snippet, get back its value, console logs, and execution time.
- list: enumerate adapters, adapter methods, and named tasks available to code.
- search: substring-search adapter/method/task names and descriptions.
- run-named-task: run a host-registered named task (a "skill") by name.

Adapter methods are called from inside a snippet as adapters.<name>.<method>(args),
which always returns a Promise. Network access is blocked by default; see list
output for the configured policy. Large return values are truncated by default —
pass truncate=false to opt out for one call.`

// Server owns the wiring between the protocol surface and the sandbox
// pipeline: registry lookups for list/search, the orchestrator for
// execute, the task registry for run-named-task, and the audit trail each
// tool call is recorded through.
type Server struct {
	Registry     *registry.Registry
	Tasks        *tasks.Registry
	Orchestrator *sandbox.Orchestrator
	Audit        *audit.AuditTrail
	Redaction    *redaction.RedactionEngine
	Config       config.Config
	Version      string
	Log          *zap.Logger

	// clientSessions maps a transport-level client ID (the X-Client-ID
	// header, or "" for a single stdio connection) to the audit session
	// it was assigned at initialize time, so every tools/call on that
	// connection accrues to the same audit.SessionInfo rather than a
	// fresh one per call.
	clientSessions sync.Map
}

// New builds a Server from already-constructed components (spec §6: the
// host wires adapters/tasks/config once at startup).
func New(reg *registry.Registry, taskReg *tasks.Registry, orch *sandbox.Orchestrator, trail *audit.AuditTrail, redactionEngine *redaction.RedactionEngine, cfg config.Config, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Registry:     reg,
		Tasks:        taskReg,
		Orchestrator: orch,
		Audit:        trail,
		Redaction:    redactionEngine,
		Config:       cfg,
		Version:      version,
		Log:          log,
	}
}

// mcpMethodHandler is a function that handles a specific MCP method.
type mcpMethodHandler func(s *Server, ctx context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse

var mcpMethodHandlers = map[string]mcpMethodHandler{
	"initialize":               (*Server).handleInitialize,
	"tools/list":               (*Server).handleToolsList,
	"tools/call":               (*Server).handleToolsCall,
	"resources/list":           (*Server).handleResourcesList,
	"resources/read":           (*Server).handleResourcesRead,
	"resources/templates/list": (*Server).handleResourcesTemplatesList,
}

var mcpStaticResponses = map[string]string{
	"initialized":  `{}`,
	"ping":         `{}`,
	"prompts/list": `{"prompts":[]}`,
}

// HandleRequest processes one MCP request and returns a response, or nil
// for a notification (a request with no id, per JSON-RPC 2.0).
func (s *Server) HandleRequest(ctx context.Context, req mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	if !req.HasID() || strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	if req.HasInvalidID() {
		resp := mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &mcp.JSONRPCError{Code: -32600, Message: "Invalid request: id must be a string or number"}}
		return &resp
	}

	if handler, ok := mcpMethodHandlers[req.Method]; ok {
		resp := handler(s, ctx, req)
		return &resp
	}

	if staticResult, ok := mcpStaticResponses[req.Method]; ok {
		resp := mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(staticResult)}
		return &resp
	}

	resp := mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &mcp.JSONRPCError{Code: -32601, Message: "Method not found: " + req.Method},
	}
	return &resp
}

func (s *Server) handleInitialize(_ context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	if s.Audit != nil {
		var params struct {
			ClientInfo audit.ClientIdentifier `json:"clientInfo"`
		}
		_ = json.Unmarshal(req.Params, &params)
		info := s.Audit.CreateSession(params.ClientInfo)
		s.clientSessions.Store(req.ClientID, info.ID)
	}

	result := mcp.MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      mcp.MCPServerInfo{Name: "sandboxmcp", Version: s.Version},
		Capabilities: mcp.MCPCapabilities{
			Tools:     mcp.MCPToolsCapability{},
			Resources: mcp.MCPResourcesCapability{},
		},
		Instructions: serverInstructions,
	}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: mcp.SafeMarshal(result, `{}`)}
}

func (s *Server) handleToolsList(_ context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	result := mcp.MCPToolsListResult{Tools: schema.AllTools()}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: mcp.SafeMarshal(result, `{"tools":[]}`)}
}
