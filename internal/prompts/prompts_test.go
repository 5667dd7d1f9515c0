package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	if len(res.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(res.Messages))
	}
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Messages[0].Content)
	}
	return tc.Text
}

func TestStartPrompt(t *testing.T) {
	p := NewStartPrompt()
	if p.Definition().Name != "recall-start" {
		t.Errorf("name = %s", p.Definition().Name)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"task": "add login flow", "spec_folder": "001-auth"}
	res, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := promptText(t, res)
	for _, want := range []string{"memory_context", `query="add login flow"`, `specFolder="001-auth"`, "memory_save"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt should contain %s:\n%s", want, text)
		}
	}
}

func TestStartPrompt_RequiresTask(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"task": "  "}
	if _, err := NewStartPrompt().Handle(context.Background(), req); err == nil {
		t.Error("expected an error for an empty task")
	}
}

func TestStatusPrompt(t *testing.T) {
	res, err := NewStatusPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := promptText(t, res)
	if !strings.Contains(text, "memory_health") || !strings.Contains(text, "memory_stats") {
		t.Errorf("prompt = %s", text)
	}
}
