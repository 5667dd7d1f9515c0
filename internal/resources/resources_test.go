package resources

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/memory"
)

func readText(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T", contents[0])
	}
	return tc
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func TestHandleHealth(t *testing.T) {
	h := NewHandler(func() map[string]any { return map[string]any{"state": "READY"} }, nil)
	if h.HealthResource().URI != HealthURI {
		t.Errorf("uri = %s", h.HealthResource().URI)
	}

	contents, err := h.HandleHealth(context.Background(), readReq(HealthURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := readText(t, contents)
	var got map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["state"] != "READY" || tc.MIMEType != "application/json" {
		t.Errorf("resource = %+v", tc)
	}
}

func TestHandleStats(t *testing.T) {
	h := NewHandler(nil, func(context.Context) (*memory.Stats, error) {
		return &memory.Stats{TotalMemories: 3}, nil
	})
	contents, err := h.HandleStats(context.Background(), readReq(StatsURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc := readText(t, contents); !strings.Contains(tc.Text, `"total_memories": 3`) {
		t.Errorf("body = %s", tc.Text)
	}
}

func TestHandleStats_StorageErrorInBody(t *testing.T) {
	h := NewHandler(nil, func(context.Context) (*memory.Stats, error) {
		return nil, errors.New("database is locked")
	})
	contents, err := h.HandleStats(context.Background(), readReq(StatsURI))
	if err != nil {
		t.Fatalf("storage errors belong in the body, got %v", err)
	}
	tc := readText(t, contents)
	if tc.MIMEType != "text/plain" || tc.Text != "Error: database is locked" {
		t.Errorf("resource = %+v", tc)
	}
}

func TestHandleHealth_Unavailable(t *testing.T) {
	contents, _ := NewHandler(nil, nil).HandleHealth(context.Background(), readReq(HealthURI))
	if tc := readText(t, contents); !strings.HasPrefix(tc.Text, "Error:") {
		t.Errorf("body = %s", tc.Text)
	}
}
