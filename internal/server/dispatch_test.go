package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/toolerr"
)

type resolverMap map[string]server.ToolHandlerFunc

func (m resolverMap) Resolve(name string) (server.ToolHandlerFunc, bool) {
	h, ok := m[name]
	return h, ok
}

func textHandler(text string) server.ToolHandlerFunc {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(text), nil
	}
}

func TestDispatch_RoutesByName(t *testing.T) {
	var gotArgs map[string]any
	d := NewDispatcher(resolverMap{
		"a": func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			gotArgs = req.GetArguments()
			return mcp.NewToolResultText("from a"), nil
		},
		"b": textHandler("from b"),
	})

	res, err := d.Dispatch(context.Background(), "a", map[string]any{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Content[0].(mcp.TextContent).Text; got != "from a" {
		t.Errorf("text = %q", got)
	}
	if gotArgs["query"] != "x" {
		t.Errorf("handler saw args %v", gotArgs)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := NewDispatcher(resolverMap{})
	_, err := d.Dispatch(context.Background(), "memory_bogus", nil)

	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownToolError", err)
	}
	if unknown.Name != "memory_bogus" {
		t.Errorf("name = %s", unknown.Name)
	}
	if toolerr.CodeFor(err) != toolerr.CodeUnknownTool {
		t.Errorf("code = %s", toolerr.CodeFor(err))
	}
}

func TestDispatch_NilResultIsInternal(t *testing.T) {
	d := NewDispatcher(resolverMap{
		"empty": func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) { return nil, nil },
	})
	_, err := d.Dispatch(context.Background(), "empty", nil)
	if !errors.Is(err, toolerr.ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	d := NewDispatcher(resolverMap{
		"boom": func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) { panic("kaboom") },
	})
	res, err := d.Dispatch(context.Background(), "boom", nil)
	if res != nil {
		t.Error("result should be nil after a panic")
	}
	if !errors.Is(err, toolerr.ErrInternal) || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("error = %v", err)
	}
}

func TestDispatch_HandlerErrorPassesThrough(t *testing.T) {
	boom := errors.New("disk full")
	d := NewDispatcher(resolverMap{
		"fail": func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) { return nil, boom },
	})
	if _, err := d.Dispatch(context.Background(), "fail", nil); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestDispatch_StrictSchemas(t *testing.T) {
	handlers := resolverMap{}
	for _, name := range catalog.Names() {
		handlers[name] = textHandler("ok")
	}
	d, err := NewDispatcher(handlers).WithStrictSchemas(catalog.Descriptors())
	if err != nil {
		t.Fatalf("compile schemas: %v", err)
	}

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", catalog.MemorySearch, map[string]any{"query": "auth", "limit": 5.0}, false},
		{"no args", catalog.MemoryStats, nil, false},
		{"wrong type", catalog.MemorySearch, map[string]any{"query": 42.0}, true},
		{"missing required", catalog.MemoryMatchTriggers, map[string]any{}, true},
		{"bad enum", catalog.MemorySearch, map[string]any{"tier": "legendary"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), tt.tool, tt.args)
			if tt.wantErr {
				if !errors.Is(err, toolerr.ErrInvalidInput) {
					t.Errorf("error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
