package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/hooks"
	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/toolerr"
)

// fakeSource serves canned surfacing results.
type fakeSource struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeSource) Constitutional(int) ([]memory.Memory, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []memory.Memory{{ID: 1, Title: "House rules", ImportanceTier: memory.TierConstitutional}}, nil
}

func (f *fakeSource) MatchTriggers(prompt, _ string, _ int) ([]memory.TriggerMatch, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []memory.TriggerMatch{{
		Memory:         memory.Memory{ID: 2, Title: "Auth design", ImportanceTier: "important"},
		MatchedPhrases: []string{"login flow"},
	}}, nil
}

func (f *fakeSource) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func newTestHandler(t *testing.T, handlers resolverMap, src *fakeSource) (*Handler, *Notifier, *syncBuffer) {
	t.Helper()
	logger, logs := newTestLogger()
	notifier := NewNotifier(logger)
	cfg := HandlerConfig{
		Dispatcher: NewDispatcher(handlers),
		Notifier:   notifier,
		Logger:     logger,
	}
	if src != nil {
		cfg.Surfacer = hooks.NewSurfacer(hooks.SurfacerConfig{
			Source: func(context.Context) (hooks.Source, error) { return src, nil },
		})
	}
	return NewHandler(cfg), notifier, logs
}

func callIDOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	v, ok := MetaValue(res, MetaCallID)
	if !ok {
		t.Fatal("result has no callId")
	}
	id, ok := v.(string)
	if !ok || id == "" {
		t.Fatalf("callId = %#v", v)
	}
	return id
}

func TestHandleCall_CallIDFromProgressToken(t *testing.T) {
	h, _, _ := newTestHandler(t, resolverMap{catalog.MemoryStats: textHandler("stats")}, nil)

	tests := []struct {
		name  string
		token mcp.ProgressToken
		want  string
	}{
		{"string token", "tok-42", "tok-42"},
		{"numeric token", 7, "7"},
		{"decoded integer token", float64(42), "42"},
		{"large decoded token", 1e21, "1000000000000000000000"},
		{"fractional token", 0.5, "0.5"},
		{"json number token", json.Number("12345678901234567890"), "12345678901234567890"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.HandleCall(context.Background(), CallRequest{Name: catalog.MemoryStats, ProgressToken: tt.token})
			if got := callIDOf(t, res); got != tt.want {
				t.Errorf("callId = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHandleCall_GeneratesULID(t *testing.T) {
	h, _, _ := newTestHandler(t, resolverMap{catalog.MemoryStats: textHandler("stats")}, nil)

	first := callIDOf(t, h.HandleCall(context.Background(), CallRequest{Name: catalog.MemoryStats}))
	second := callIDOf(t, h.HandleCall(context.Background(), CallRequest{Name: catalog.MemoryStats, ProgressToken: ""}))
	for _, id := range []string{first, second} {
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Errorf("callId %q is not a ULID: %v", id, err)
		}
	}
	if first == second {
		t.Error("call ids should be unique")
	}
}

func TestHandleCall_UnknownTool(t *testing.T) {
	h, _, logs := newTestHandler(t, resolverMap{}, nil)

	res := h.HandleCall(context.Background(), CallRequest{Name: "memory_teleport", Arguments: map[string]any{"x": 1.0}})
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	payload, ok := res.StructuredContent.(toolerr.Payload)
	if !ok {
		t.Fatalf("structured content is %T", res.StructuredContent)
	}
	if payload.Code != toolerr.CodeUnknownTool || payload.Tool != "memory_teleport" {
		t.Errorf("payload = %+v", payload)
	}
	callIDOf(t, res)
	if !strings.Contains(logs.String(), "tool call failed") {
		t.Errorf("failure should be logged:\n%s", logs.String())
	}
}

func TestHandleCall_GuardRejectsBeforeDispatch(t *testing.T) {
	var ran bool
	h, _, _ := newTestHandler(t, resolverMap{
		catalog.MemorySearch: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ran = true
			return mcp.NewToolResultText("ok"), nil
		},
	}, nil)

	res := h.HandleCall(context.Background(), CallRequest{
		Name:      catalog.MemorySearch,
		Arguments: map[string]any{"query": strings.Repeat("q", 10001)},
	})
	if ran {
		t.Error("handler should not run for oversized input")
	}
	if !res.IsError || !strings.Contains(resultText(res), "query exceeds 10000 characters") {
		t.Errorf("result = %q", resultText(res))
	}
}

func TestHandleCall_GateFailure(t *testing.T) {
	logger, _ := newTestLogger()
	h := NewHandler(HandlerConfig{
		Dispatcher: NewDispatcher(resolverMap{catalog.MemoryList: textHandler("list")}),
		Gate:       func(context.Context) error { return errStorageClosed },
		Logger:     logger,
	})

	res := h.HandleCall(context.Background(), CallRequest{Name: catalog.MemoryList})
	payload, ok := res.StructuredContent.(toolerr.Payload)
	if !ok || payload.Code != toolerr.CodeStorage {
		t.Errorf("structured content = %#v", res.StructuredContent)
	}
}

func TestHandleCall_BudgetOverrunLogged(t *testing.T) {
	big := strings.Repeat("x", 200_000)
	h, _, logs := newTestHandler(t, resolverMap{catalog.MemoryStats: textHandler(big)}, nil)

	res := h.HandleCall(context.Background(), CallRequest{Name: catalog.MemoryStats})
	if res.IsError {
		t.Fatal("an over-budget result is still returned")
	}
	if resultText(res) != big {
		t.Error("over-budget result must not be truncated")
	}
	if !strings.Contains(logs.String(), "response exceeds token budget") {
		t.Errorf("missing budget warning:\n%s", logs.String())
	}
}

func TestHandleCall_AutoSurfacesMemoryAwareTools(t *testing.T) {
	src := &fakeSource{}
	h, _, _ := newTestHandler(t, resolverMap{catalog.MemorySearch: textHandler("found")}, src)

	res := h.HandleCall(context.Background(), CallRequest{
		Name:      catalog.MemorySearch,
		Arguments: map[string]any{"query": "  login flow  "},
	})
	v, ok := MetaValue(res, MetaAutoSurfacedCtx)
	if !ok {
		t.Fatal("memory-aware result should carry surfaced context")
	}
	surfaced, ok := v.(*hooks.SurfacedContext)
	if !ok {
		t.Fatalf("surfaced context is %T", v)
	}
	if len(surfaced.Constitutional) != 1 || len(surfaced.Triggered) != 1 {
		t.Errorf("surfaced = %+v", surfaced)
	}
	if got := src.seen(); len(got) != 1 || got[0] != "login flow" {
		t.Errorf("surfacer saw hints %v", got)
	}
}

func TestHandleCall_NoSurfacing(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
		res  *mcp.CallToolResult
	}{
		{"not memory aware", catalog.MemoryStats, map[string]any{"query": "login flow"}, mcp.NewToolResultText("ok")},
		{"error result", catalog.MemorySearch, map[string]any{"query": "login flow"}, mcp.NewToolResultError("nope")},
		{"no hint", catalog.MemoryList, map[string]any{"limit": 5.0}, mcp.NewToolResultText("ok")},
		{"short hint", catalog.MemorySearch, map[string]any{"query": "ab"}, mcp.NewToolResultText("ok")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			res := tt.res
			h, _, _ := newTestHandler(t, resolverMap{
				tt.tool: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) { return res, nil },
			}, src)

			out := h.HandleCall(context.Background(), CallRequest{Name: tt.tool, Arguments: tt.args})
			if _, ok := MetaValue(out, MetaAutoSurfacedCtx); ok {
				t.Error("result should carry no surfaced context")
			}
			if len(src.seen()) != 0 {
				t.Error("surfacer should not be consulted")
			}
		})
	}
}

func TestHandleCall_SurfaceFailureKeepsResult(t *testing.T) {
	src := &fakeSource{err: errors.New("trigger index unavailable")}
	h, _, logs := newTestHandler(t, resolverMap{catalog.MemoryContext: textHandler("context")}, src)

	res := h.HandleCall(context.Background(), CallRequest{
		Name:      catalog.MemoryContext,
		Arguments: map[string]any{"query": "login flow"},
	})
	if res.IsError || resultText(res) != "context" {
		t.Errorf("result = %+v", res)
	}
	if _, ok := MetaValue(res, MetaAutoSurfacedCtx); ok {
		t.Error("failed surfacing should attach nothing")
	}
	callIDOf(t, res)
	if !strings.Contains(logs.String(), "auto-surface failed") {
		t.Errorf("missing surface warning:\n%s", logs.String())
	}
}

func TestHandleCall_NotifiesAfterResponse(t *testing.T) {
	h, notifier, _ := newTestHandler(t, resolverMap{catalog.MemoryStats: textHandler("stats")}, nil)
	got := make(chan notification, 1)
	notifier.Register(func(ctx context.Context, tool, callID string, res *mcp.CallToolResult) error {
		if CallDuration(ctx) < 0 {
			t.Error("negative duration")
		}
		got <- notification{tool: tool, callID: callID, result: res}
		return nil
	})

	res := h.HandleCall(context.Background(), CallRequest{Name: catalog.MemoryStats, ProgressToken: "abc"})
	select {
	case nt := <-got:
		if nt.tool != catalog.MemoryStats || nt.callID != "abc" || nt.result != res {
			t.Errorf("notification = %+v", nt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber never ran")
	}
}

func TestToolHandler_ReadsProgressToken(t *testing.T) {
	h, _, _ := newTestHandler(t, resolverMap{catalog.MemoryStats: textHandler("stats")}, nil)

	req := mcp.CallToolRequest{}
	req.Params.Name = catalog.MemoryStats
	req.Params.Meta = &mcp.Meta{ProgressToken: "from-client"}
	res, err := h.ToolHandler(catalog.MemoryStats)(context.Background(), req)
	if err != nil {
		t.Fatalf("ToolHandler never returns an error, got %v", err)
	}
	if got := callIDOf(t, res); got != "from-client" {
		t.Errorf("callId = %s", got)
	}
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}
