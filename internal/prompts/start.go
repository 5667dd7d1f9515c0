// Package prompts implements the MCP prompts of recall.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
)

// StartPrompt handles the recall-start MCP prompt.
// It loads the memories relevant to a task before any work begins.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("recall-start",
		mcp.WithPromptDescription(
			"Start a task with its memory loaded: constitutional rules, "+
				"trigger matches and the most relevant saved decisions.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you are about to work on"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("spec_folder",
			mcp.ArgumentDescription("Restrict retrieval to one spec folder"),
		),
	)
}

// Handle processes the recall-start prompt request.
func (p *StartPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := strings.TrimSpace(req.Params.Arguments["task"])
	if task == "" {
		return nil, fmt.Errorf("prompts: recall-start needs a task")
	}
	folder := strings.TrimSpace(req.Params.Arguments["spec_folder"])

	call := fmt.Sprintf("`%s` with query=%q", catalog.MemoryContext, task)
	if folder != "" {
		call += fmt.Sprintf(", mode=\"focused\" and specFolder=%q", folder)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start task: %s", task),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I am about to work on: %s\n\n"+
						"Please:\n"+
						"1. Run %s and follow every constitutional memory it returns\n"+
						"2. Summarize the decisions that affect this task in a few bullets\n"+
						"3. Run `%s` before risky changes\n"+
						"4. When we settle something worth remembering, write it under <spec>/memory/ and run `%s`",
					task, call, catalog.CheckpointCreate, catalog.MemorySave,
				)),
			},
		},
	}, nil
}
