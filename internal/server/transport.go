package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CallFunc runs one tool call and always produces a result.
type CallFunc func(ctx context.Context, call CallRequest) *mcp.CallToolResult

// Transport serves an MCP server over a line-delimited JSON-RPC stream.
// tools/call requests naming a tool the server does not register are
// answered through call, so the client sees an isError result carrying
// E_UNKNOWN_TOOL instead of a JSON-RPC protocol error. Close stops Listen.
type Transport struct {
	mcp    *server.MCPServer
	stdio  *server.StdioServer
	call   CallFunc
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewTransport creates a stdio transport for s. Protocol errors are logged
// through logger.
func NewTransport(s *server.MCPServer, call CallFunc, logger *slog.Logger) *Transport {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	return &Transport{mcp: s, stdio: stdio, call: call, logger: logger}
}

// Listen serves requests from in and writes responses to out until in is
// exhausted, ctx is done or Close is called.
func (t *Transport) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	w := &lockedWriter{w: out}
	pr, pw := io.Pipe()
	go t.pump(ctx, in, pw, w)
	err := t.stdio.Listen(ctx, pr, w)
	pr.Close()
	return err
}

// pump copies in to pw line by line, answering intercepted lines on w.
func (t *Transport) pump(ctx context.Context, in io.Reader, pw *io.PipeWriter, w io.Writer) {
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if reply, ok := t.intercept(ctx, line); ok {
				if _, werr := w.Write(reply); werr != nil {
					t.logger.Error("write response", "error", werr)
				}
			} else if _, werr := pw.Write(line); werr != nil {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			pw.CloseWithError(err)
			return
		}
	}
}

type callEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		Meta      *struct {
			ProgressToken mcp.ProgressToken `json:"progressToken"`
		} `json:"_meta"`
	} `json:"params"`
}

type callResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      json.RawMessage     `json:"id"`
	Result  *mcp.CallToolResult `json:"result"`
}

// intercept returns the encoded response line for a tools/call of an
// unregistered tool. Every other line is left to the MCP server.
func (t *Transport) intercept(ctx context.Context, line []byte) ([]byte, bool) {
	var env callEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, false
	}
	if env.Method != string(mcp.MethodToolsCall) || len(env.ID) == 0 || string(env.ID) == "null" {
		return nil, false
	}
	if t.mcp.GetTool(env.Params.Name) != nil {
		return nil, false
	}

	call := CallRequest{Name: env.Params.Name, Arguments: env.Params.Arguments}
	if env.Params.Meta != nil {
		call.ProgressToken = env.Params.Meta.ProgressToken
	}
	res := t.call(ctx, call)
	reply, err := json.Marshal(callResponse{JSONRPC: mcp.JSONRPC_VERSION, ID: env.ID, Result: res})
	if err != nil {
		t.logger.Error("encode response", "tool", call.Name, "error", err)
		return nil, false
	}
	return append(reply, '\n'), true
}

// Close cancels Listen. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// lockedWriter serializes the server's writes with intercepted replies.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
