package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dev-console/agentsandbox/internal/audit"
	"github.com/dev-console/agentsandbox/internal/mcp"
	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/registry"
	"github.com/dev-console/agentsandbox/internal/sandbox"
	"github.com/dev-console/agentsandbox/internal/tasks"
)

func (s *Server) handleToolsCall(ctx context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &mcp.JSONRPCError{Code: -32602, Message: "Invalid params: " + err.Error()},
		}
	}

	start := time.Now()
	var result json.RawMessage
	var callErr *model.ExecutionError

	switch params.Name {
	case "execute":
		result, callErr = s.toolExecute(ctx, params.Arguments)
	case "list":
		result, callErr = s.toolList(params.Arguments)
	case "search":
		result, callErr = s.toolSearch(params.Arguments)
	case "run-named-task":
		result, callErr = s.toolRunNamedTask(ctx, params.Arguments)
	default:
		return mcp.JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &mcp.JSONRPCError{Code: -32601, Message: "Unknown tool: " + params.Name},
		}
	}

	s.recordAudit(req, params.Name, params.Arguments, result, callErr, start)
	if s.Redaction != nil && result != nil {
		result = s.Redaction.RedactJSON(result)
	}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// recordAudit appends one audit entry per tool call (spec §6 supplemented
// feature: execution audit trail). Parameters pass through the redaction
// engine before the audit trail's own redaction patterns see them — two
// independent scrubbing passes, since the engines cover different pattern
// sets and neither should be trusted alone.
func (s *Server) recordAudit(req mcp.JSONRPCRequest, toolName string, args json.RawMessage, result json.RawMessage, callErr *model.ExecutionError, start time.Time) {
	if s.Audit == nil {
		return
	}
	params := string(args)
	if s.Redaction != nil {
		params = s.Redaction.Redact(params)
	}
	sessionID, clientID := s.resolveSession(req)
	entry := audit.AuditEntry{
		SessionID:    sessionID,
		ClientID:     clientID,
		ToolName:     toolName,
		Parameters:   params,
		ResponseSize: len(result),
		Duration:     time.Since(start).Milliseconds(),
		Success:      callErr == nil,
	}
	if callErr != nil {
		entry.ErrorMessage = callErr.Message
	}
	s.Audit.Record(entry)
}

// resolveSession returns the audit session ID and normalized client name for
// req's transport-level ClientID. A caller that sent initialize already has
// one recorded by handleInitialize; a caller that skipped straight to
// tools/call (or a transport that never wires X-Client-ID) gets a session
// lazily created here, so ToolCalls accrual and QueryRedactions/Query by
// session ID both work regardless of whether initialize was observed.
func (s *Server) resolveSession(req mcp.JSONRPCRequest) (sessionID, clientID string) {
	if v, ok := s.clientSessions.Load(req.ClientID); ok {
		sessionID = v.(string)
		if sess := s.Audit.GetSession(sessionID); sess != nil {
			return sessionID, sess.ClientID
		}
		return sessionID, req.ClientID
	}
	info := s.Audit.CreateSession(audit.ClientIdentifier{})
	s.clientSessions.Store(req.ClientID, info.ID)
	return info.ID, info.ClientID
}

// errKindToCode maps a wire-visible ExecutionError.Name (spec §7) to the
// MCP structured-error code the tool result surfaces.
func errKindToCode(name string) string {
	switch name {
	case model.ErrKindSyntax:
		return mcp.ErrSyntax
	case model.ErrKindAnalysis:
		return mcp.ErrAnalysis
	case model.ErrKindTimeout:
		return mcp.ErrTimeout
	case model.ErrKindWorker:
		return mcp.ErrWorker
	case model.ErrKindRuntime:
		return mcp.ErrRuntime
	case model.ErrKindAdapterMethodNotFound:
		return mcp.ErrAdapterNotFound
	case model.ErrKindNetworkBlocked:
		return mcp.ErrNetworkBlocked
	case model.ErrKindTaskNotFound:
		return mcp.ErrTaskNotFound
	default:
		return mcp.ErrInternal
	}
}

func executionErrorResponse(res model.ExecutionResult) json.RawMessage {
	code := errKindToCode(res.Error.Name)
	return mcp.StructuredErrorResponse(code, res.Error.Message, "Inspect the error and retry with corrected input.")
}

type executeArgs struct {
	Code            string `json:"code"`
	TimeoutMs       int    `json:"timeout_ms"`
	Truncate        *bool  `json:"truncate"`
	MaxItems        int    `json:"max_items"`
	MaxStringLength int    `json:"max_string_length"`
}

func (s *Server) toolExecute(ctx context.Context, raw json.RawMessage) (json.RawMessage, *model.ExecutionError) {
	var args executeArgs
	mcp.LenientUnmarshal(raw, &args)
	if strings.TrimSpace(args.Code) == "" {
		return mcp.StructuredErrorResponse(mcp.ErrMissingParam, "The 'code' parameter is required.", "Add the 'code' parameter and call again.", mcp.WithParam("code")), nil
	}

	cfg := s.Config.Sandbox
	if args.TimeoutMs > 0 {
		cfg.TimeoutMs = args.TimeoutMs
	}

	truncate := true
	if args.Truncate != nil {
		truncate = *args.Truncate
	}

	res := s.Orchestrator.Execute(ctx, sandbox.Request{
		Code:            args.Code,
		Config:          cfg,
		Truncate:        truncate,
		MaxItems:        args.MaxItems,
		MaxStringLength: args.MaxStringLength,
	})
	if !res.Success {
		return executionErrorResponse(res), res.Error
	}
	return mcp.JSONResponse("Execution result", res), nil
}

type listArgs struct {
	Truncate *bool `json:"truncate"`
	MaxItems int   `json:"max_items"`
}

type adapterMethodSummary struct {
	Adapter   string `json:"adapter"`
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

type listResult struct {
	Adapters    []string               `json:"adapters"`
	Methods     []adapterMethodSummary `json:"methods"`
	NamedTasks  []model.NamedTask      `json:"named_tasks"`
	AdapterCt   int                    `json:"adapter_count"`
	MethodCt    int                    `json:"method_count"`
	NamedTaskCt int                    `json:"named_task_count"`
}

func (s *Server) toolList(raw json.RawMessage) (json.RawMessage, *model.ExecutionError) {
	var args listArgs
	mcp.LenientUnmarshal(raw, &args)

	adapters := s.Registry.Enumerate()
	result := listResult{AdapterCt: len(adapters)}
	for _, a := range adapters {
		result.Adapters = append(result.Adapters, a.Name)
		methodNames := make([]string, 0, len(a.Methods))
		for name := range a.Methods {
			methodNames = append(methodNames, name)
		}
		sort.Strings(methodNames)
		for _, name := range methodNames {
			result.Methods = append(result.Methods, adapterMethodSummary{
				Adapter:   a.Name,
				Method:    name,
				Signature: signatureFor(a.Name, name, a.Methods[name]),
			})
		}
	}
	result.MethodCt = len(result.Methods)

	result.NamedTasks = s.Tasks.Enumerate()
	result.NamedTaskCt = len(result.NamedTasks)

	truncate := true
	if args.Truncate != nil {
		truncate = *args.Truncate
	}
	if !truncate {
		return mcp.JSONResponse("Registered capabilities", result), nil
	}

	maxItems := sandbox.DefaultMaxArrayItemsList
	if args.MaxItems > 0 {
		maxItems = args.MaxItems
	}
	if len(result.Adapters) > maxItems {
		result.Adapters = result.Adapters[:maxItems]
	}
	if len(result.Methods) > maxItems {
		result.Methods = result.Methods[:maxItems]
	}
	if len(result.NamedTasks) > maxItems {
		result.NamedTasks = result.NamedTasks[:maxItems]
	}
	return mcp.JSONResponse("Registered capabilities", result), nil
}

type searchArgs struct {
	Query string `json:"query"`
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type searchMatch struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

func (s *Server) toolSearch(raw json.RawMessage) (json.RawMessage, *model.ExecutionError) {
	var args searchArgs
	mcp.LenientUnmarshal(raw, &args)
	if strings.TrimSpace(args.Query) == "" {
		return mcp.StructuredErrorResponse(mcp.ErrMissingParam, "The 'query' parameter is required.", "Add the 'query' parameter and call again.", mcp.WithParam("query")), nil
	}

	category := args.Type
	if category == "" {
		category = "all"
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(args.Query)

	var matches []searchMatch

	if category == "all" || category == "adapters" {
		for _, a := range s.Registry.Enumerate() {
			if containsFold(a.Name, needle) || containsFold(a.Description, needle) {
				matches = append(matches, searchMatch{Type: "adapter", Name: a.Name, Description: a.Description})
			}
		}
	}
	if category == "all" || category == "methods" {
		for _, a := range s.Registry.Enumerate() {
			methodNames := make([]string, 0, len(a.Methods))
			for name := range a.Methods {
				methodNames = append(methodNames, name)
			}
			sort.Strings(methodNames)
			for _, name := range methodNames {
				d := a.Methods[name]
				full := a.Name + "." + name
				if containsFold(full, needle) || containsFold(d.Description, needle) {
					matches = append(matches, searchMatch{
						Type:        "adapter_method",
						Name:        full,
						Description: d.Description,
						Signature:   signatureFor(a.Name, name, d),
					})
				}
			}
		}
	}
	if category == "all" || category == "tasks" {
		for _, t := range s.Tasks.Enumerate() {
			if containsFold(t.Name, needle) || containsFold(t.Description, needle) {
				matches = append(matches, searchMatch{Type: "named_task", Name: t.Name, Description: t.Description})
			}
		}
	}

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return mcp.JSONResponse(fmt.Sprintf("%d match(es)", len(matches)), matches), nil
}

func containsFold(haystack, needleLower string) bool {
	return strings.Contains(strings.ToLower(haystack), needleLower)
}

type runNamedTaskArgs struct {
	Name            string         `json:"name"`
	Inputs          map[string]any `json:"inputs"`
	Truncate        *bool          `json:"truncate"`
	MaxItems        int            `json:"max_items"`
	MaxStringLength int            `json:"max_string_length"`
	TimeoutMs       int            `json:"timeout_ms"`
}

func (s *Server) toolRunNamedTask(ctx context.Context, raw json.RawMessage) (json.RawMessage, *model.ExecutionError) {
	var args runNamedTaskArgs
	mcp.LenientUnmarshal(raw, &args)
	if strings.TrimSpace(args.Name) == "" {
		return mcp.StructuredErrorResponse(mcp.ErrMissingParam, "The 'name' parameter is required.", "Add the 'name' parameter and call again.", mcp.WithParam("name")), nil
	}

	task, ok := s.Tasks.Get(args.Name)
	if !ok {
		err := &model.ExecutionError{Name: model.ErrKindTaskNotFound, Message: fmt.Sprintf("named task %q is not registered", args.Name)}
		return mcp.StructuredErrorResponse(mcp.ErrTaskNotFound, err.Message, "Call list() to see registered named tasks, then retry with a valid name."), err
	}

	res := tasks.Run(ctx, task, args.Inputs, s.Registry, args.TimeoutMs)
	if !res.Success {
		return executionErrorResponse(res), res.Error
	}

	truncate := true
	if args.Truncate != nil {
		truncate = *args.Truncate
	}
	if truncate {
		limits := sandbox.DefaultExecuteLimits()
		if args.MaxItems > 0 {
			limits.MaxItems = args.MaxItems
		}
		if args.MaxStringLength > 0 {
			limits.MaxStringLength = args.MaxStringLength
		}
		// A task's return value is whatever Go type its author built, not
		// the goja-exported map[string]any/[]any shapes Summarize expects
		// from a worker run — round-trip it through JSON first so nested
		// arrays and strings are actually visited.
		summarized, truncated := sandbox.Summarize(toGenericJSON(res.Value), limits)
		res.Value = summarized
		res.Truncated = res.Truncated || truncated
	}
	return mcp.JSONResponse("Named task result", res), nil
}

// toGenericJSON round-trips v through JSON encoding so the result is built
// from the plain string/float64/[]any/map[string]any shapes Summarize
// recurses into. A marshal failure returns v unchanged.
func toGenericJSON(v any) any {
	encoded, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return v
	}
	return generic
}

func signatureFor(adapterName, methodName string, d model.AdapterMethodDescriptor) string {
	return registry.Signature(adapterName, methodName, d)
}
