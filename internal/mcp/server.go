// Package mcp serves the tools as an MCP server, on stdio or over
// WebSocket connections.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/paolino/mcp-memory-server/internal/logging"
	"github.com/paolino/mcp-memory-server/internal/tools"
	"github.com/paolino/mcp-memory-server/internal/workerpool"
)

var log = logging.L("mcp")

const internalErrorReply = `{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`

// ServerName is reported in the initialize result.
const ServerName = "mcp-memory"

// Instructions is sent to clients on initialize.
const Instructions = `Inspect and manage memory usage on this machine.

Tools:
- list_memory_usage: RAM and swap totals with warnings
- list_top_processes: biggest processes by memory or CPU
- list_process_groups: memory per process name
- find_stale_processes: old idle processes worth cleaning up
- kill_processes: send SIGTERM/SIGKILL with safety checks

Before killing, list processes first and pass confirm_names so that a PID
reused by another program is refused.`

// Server registers the tools with an MCP server and runs every tool call on
// the worker pool.
type Server struct {
	toolbox *tools.Toolbox
	pool    *workerpool.Pool
	mcp     *server.MCPServer
}

// NewServer creates a Server. Tool calls run on pool.
func NewServer(tb *tools.Toolbox, pool *workerpool.Pool, version string) *Server {
	s := &Server{
		toolbox: tb,
		pool:    pool,
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithInstructions(Instructions),
			server.WithRecovery(),
		),
	}
	for _, def := range tools.Definitions() {
		schema, err := json.Marshal(def.InputSchema)
		if err != nil {
			log.Errorw("skipping tool with unencodable schema", logging.KeyTool, def.Name, logging.KeyError, err)
			continue
		}
		s.mcp.AddTool(mcpgo.NewToolWithRawSchema(def.Name, def.Description, schema), s.handler(def.Name))
	}
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// HandleMessage processes one raw JSON-RPC message and returns the encoded
// reply, or nil when the message was a notification.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	resp := s.mcp.HandleMessage(ctx, raw)
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		logging.FromContext(ctx).Errorw("failed to marshal response", logging.KeyError, err)
		data = []byte(internalErrorReply)
	}
	return data
}

// handler queues a call for name on the worker pool and waits for it. A full
// queue is answered with a tool error so the client can retry.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		l := logging.WithTool(logging.FromContext(ctx), uuid.NewString(), name)
		callCtx := logging.NewContext(ctx, l)
		args := req.GetArguments()

		done := make(chan tools.CommandResult, 1)
		err := s.pool.Submit(func(context.Context) {
			start := time.Now()
			result, _ := s.toolbox.Dispatch(callCtx, name, args)
			l.Infow("tool call", "status", result.Status, logging.KeyDurationMs, time.Since(start).Milliseconds())
			done <- result
		})
		if err != nil {
			l.Warnw("tool call rejected", logging.KeyError, err)
			return mcpgo.NewToolResultError("server busy: " + err.Error()), nil
		}

		select {
		case result := <-done:
			if result.Failed() {
				return mcpgo.NewToolResultError(result.Error), nil
			}
			return mcpgo.NewToolResultText(result.Stdout), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
