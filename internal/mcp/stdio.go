package mcp

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/paolino/mcp-memory-server/internal/logging"
)

// ServeStdio reads one JSON-RPC message per line from in and writes replies
// to out. It returns nil at EOF and ctx.Err() once ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	l := log.With(logging.KeySessionID, uuid.NewString(), "transport", "stdio")

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(l.Desugar()))
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return logging.NewContext(ctx, l)
	})

	l.Infow("stdio session started")
	defer l.Infow("stdio session ended")
	return stdio.Listen(ctx, in, out)
}
