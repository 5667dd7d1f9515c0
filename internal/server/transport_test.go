package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/recall/internal/toolerr"
)

type callLog struct {
	mu    sync.Mutex
	calls []CallRequest
}

func (l *callLog) call(_ context.Context, c CallRequest) *mcp.CallToolResult {
	l.mu.Lock()
	l.calls = append(l.calls, c)
	l.mu.Unlock()
	return toolerr.BuildErrorResponse(c.Name, toolerr.ErrUnknownTool, c.Arguments)
}

func (l *callLog) all() []CallRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CallRequest(nil), l.calls...)
}

func newTestTransport(t *testing.T) (*Transport, *callLog) {
	t.Helper()
	s := server.NewMCPServer("test", "0.0.1", server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("known"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	log := &callLog{}
	return NewTransport(s, log.call, quietLogger()), log
}

// responsesByID decodes newline-delimited JSON-RPC responses keyed by id.
func responsesByID(t *testing.T, out string) map[string]map[string]any {
	t.Helper()
	byID := make(map[string]map[string]any)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("bad response line %q: %v", line, err)
		}
		raw, _ := json.Marshal(msg["id"])
		byID[string(raw)] = msg
	}
	return byID
}

func TestIntercept_PassesThrough(t *testing.T) {
	tr, log := newTestTransport(t)

	lines := map[string]string{
		"registered tool": `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"known"}}`,
		"other method":    `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		"notification":    `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nope"}}`,
		"null id":         `{"jsonrpc":"2.0","id":null,"method":"tools/call","params":{"name":"nope"}}`,
		"malformed":       `{"jsonrpc":"2.0","id":3,`,
	}
	for name, line := range lines {
		t.Run(name, func(t *testing.T) {
			if reply, ok := tr.intercept(context.Background(), []byte(line+"\n")); ok {
				t.Errorf("line was intercepted: %s", reply)
			}
		})
	}
	if n := len(log.all()); n != 0 {
		t.Errorf("call ran %d times, want 0", n)
	}
}

func TestIntercept_UnregisteredTool(t *testing.T) {
	tr, log := newTestTransport(t)

	line := `{"jsonrpc":"2.0","id":"req-7","method":"tools/call","params":{"name":"memory_teleport","arguments":{"x":1},"_meta":{"progressToken":"tok-7"}}}`
	reply, ok := tr.intercept(context.Background(), []byte(line+"\n"))
	if !ok {
		t.Fatal("unregistered tool was not intercepted")
	}
	if !strings.HasSuffix(string(reply), "\n") || strings.Count(string(reply), "\n") != 1 {
		t.Errorf("reply is not a single line: %q", reply)
	}

	var resp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Result  struct {
			IsError           bool            `json:"isError"`
			StructuredContent toolerr.Payload `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal(reply, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JSONRPC != "2.0" || resp.ID != "req-7" {
		t.Errorf("envelope = %+v", resp)
	}
	if !resp.Result.IsError || resp.Result.StructuredContent.Code != toolerr.CodeUnknownTool {
		t.Errorf("result = %+v", resp.Result)
	}

	calls := log.all()
	if len(calls) != 1 {
		t.Fatalf("call ran %d times, want 1", len(calls))
	}
	if calls[0].Name != "memory_teleport" || calls[0].ProgressToken != "tok-7" || calls[0].Arguments["x"] != 1.0 {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestTransport_ListenAnswersBothPaths(t *testing.T) {
	tr, log := newTestTransport(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"known","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"missing","arguments":{}}}`,
	}, "\n") + "\n"
	out := &syncBuffer{}
	if err := tr.Listen(context.Background(), strings.NewReader(in), out); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	byID := responsesByID(t, out.String())
	known, ok := byID["1"]
	if !ok {
		t.Fatalf("no response for the registered tool:\n%s", out.String())
	}
	if res, _ := known["result"].(map[string]any); res == nil || res["isError"] == true {
		t.Errorf("registered tool response = %v", known)
	}
	missing, ok := byID["2"]
	if !ok {
		t.Fatalf("no response for the unregistered tool:\n%s", out.String())
	}
	if _, isRPCError := missing["error"]; isRPCError {
		t.Errorf("unregistered tool produced a protocol error: %v", missing)
	}
	if res, _ := missing["result"].(map[string]any); res["isError"] != true {
		t.Errorf("unregistered tool response = %v", missing)
	}
	if n := len(log.all()); n != 1 {
		t.Errorf("call ran %d times, want 1", n)
	}
}

func TestTransport_CloseBeforeListen(t *testing.T) {
	tr, _ := newTestTransport(t)
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Listen(context.Background(), strings.NewReader(""), &syncBuffer{}); err != nil {
		t.Errorf("Listen after Close = %v, want nil", err)
	}
}
