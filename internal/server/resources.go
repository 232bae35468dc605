package server

import (
	"context"

	"github.com/dev-console/agentsandbox/internal/mcp"
)

const guideResourceURI = "sandboxmcp://guide"

const guideResourceText = `# sandboxmcp usage guide

execute(code) runs a JavaScript snippet in an isolated worker. A bare
expression or a statement list without a top-level return is auto-wrapped
with one; await is always available.

Inside a snippet, adapters.<adapter>.<method>(args) calls a host-provided
capability and returns a Promise. Use list() to see which adapters and
methods are registered, and search(query) to find one by name or
description.

run-named-task(name, inputs) runs a host-registered skill by name instead
of a snippet; its output goes through the same truncation rules as execute.

Large return values are summarized by default: arrays/objects are capped
per nesting level and long strings are shortened, each with a marker
noting how much was cut. Pass truncate=false to get the raw value.`

func (s *Server) handleResourcesList(_ context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	result := mcp.MCPResourcesListResult{Resources: []mcp.MCPResource{
		{URI: guideResourceURI, Name: "sandboxmcp usage guide", Description: "Tool workflow and adapter-call conventions", MimeType: "text/markdown"},
	}}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: mcp.SafeMarshal(result, `{"resources":[]}`)}
}

func (s *Server) handleResourcesTemplatesList(_ context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	result := mcp.MCPResourceTemplatesListResult{ResourceTemplates: []any{}}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: mcp.SafeMarshal(result, `{"resourceTemplates":[]}`)}
}

func (s *Server) handleResourcesRead(_ context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	var params struct {
		URI string `json:"uri"`
	}
	mcp.LenientUnmarshal(req.Params, &params)

	if params.URI != guideResourceURI {
		return mcp.JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &mcp.JSONRPCError{Code: -32002, Message: "Resource not found: " + params.URI},
		}
	}

	result := mcp.MCPResourcesReadResult{Contents: []mcp.MCPResourceContent{
		{URI: guideResourceURI, MimeType: "text/markdown", Text: guideResourceText},
	}}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: mcp.SafeMarshal(result, `{"contents":[]}`)}
}
