package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
)

// StatusPrompt handles the recall-status MCP prompt.
// It instructs the AI to report on the health of the memory system.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("recall-status",
		mcp.WithPromptDescription(
			"Check the state of your memory: database health, pending embeddings, "+
				"background jobs and what is stored per spec folder.",
		),
	)
}

// Handle processes the recall-status prompt request.
func (p *StatusPrompt) Handle(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Recall Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run `%s` and `%s` to check my memory.\n\n"+
						"Then:\n"+
						"1. Tell me whether the database and embedding provider are healthy\n"+
						"2. Point out failed or pending embeddings and interrupted sessions\n"+
						"3. Show the memory count per spec folder\n"+
						"4. Suggest `%s` if files changed since the last index",
					catalog.MemoryHealth, catalog.MemoryStats, catalog.MemoryIndexScan,
				)),
			},
		},
	}, nil
}
