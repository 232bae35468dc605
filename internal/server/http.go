package server

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/mcp"
)

// maxHTTPBodySize caps a single JSON-RPC POST body, mirroring the teacher's
// HTTP transport ceiling.
const maxHTTPBodySize = 10 * 1024 * 1024

// HandleHTTP is the HTTP POST transport for the request protocol surface:
// one JSON-RPC request per body, one JSON-RPC response per reply.
func (s *Server) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxHTTPBodySize)
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSONRPCError(w, nil, -32700, "Read error: "+err.Error())
		return
	}

	var req mcp.JSONRPCRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		s.writeJSONRPCError(w, nil, -32700, "Parse error: "+err.Error())
		return
	}
	if req.ClientID == "" {
		req.ClientID = r.Header.Get("X-Client-ID")
	}

	resp := s.HandleRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Log.Warn("http response encode failed", zap.Error(err))
	}
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	resp := mcp.JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &mcp.JSONRPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleHealth reports liveness plus a capability count, so an operator can
// confirm adapters/tasks loaded without issuing a full tools/call.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.Version,
		"adapters": s.Registry.Count(),
		"tasks":    s.Tasks.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
