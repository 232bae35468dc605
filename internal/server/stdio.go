package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/bridge"
	"github.com/dev-console/agentsandbox/internal/mcp"
)

// maxStdioBodySize caps a single Content-Length-framed message, mirroring
// the teacher bridge's scanner buffer ceiling.
const maxStdioBodySize = 10 * 1024 * 1024

// ServeStdio reads one MCP message at a time from r (line-delimited or
// Content-Length framed, per internal/bridge's detection) and writes each
// response as a single JSON line to w. It blocks until r returns EOF or ctx
// is cancelled. Responses are written under a mutex since tool calls may
// run concurrently (each request is dispatched in its own goroutine so a
// slow execute() doesn't stall unrelated initialize/tools/list traffic).
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	var writeMu sync.Mutex
	var wg sync.WaitGroup

	writeLine := func(resp *mcp.JSONRPCResponse) {
		if resp == nil {
			return
		}
		line, err := json.Marshal(resp)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, _ = w.Write(line)
		_, _ = w.Write([]byte("\n"))
		if f, ok := w.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
	}

	for {
		if ctx.Err() != nil {
			break
		}
		msg, err := bridge.ReadStdioMessage(reader, maxStdioBodySize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			s.Log.Warn("stdio read error", zap.Error(err))
			continue
		}
		if len(msg) == 0 {
			continue
		}

		var req mcp.JSONRPCRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			writeLine(&mcp.JSONRPCResponse{JSONRPC: "2.0", ID: nil, Error: &mcp.JSONRPCError{Code: -32700, Message: "Parse error: " + err.Error()}})
			continue
		}

		wg.Add(1)
		go func(req mcp.JSONRPCRequest) {
			defer wg.Done()
			writeLine(s.HandleRequest(ctx, req))
		}(req)
	}

	wg.Wait()
	return nil
}
