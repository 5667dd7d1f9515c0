package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// scores reads the three required 0-100 scores of a learning tool.
func scores(req mcp.CallToolRequest) (knowledge, uncertainty, completeness float64, missing string) {
	var ok bool
	if knowledge, ok = floatArg(req, "knowledgeScore"); !ok {
		return 0, 0, 0, "knowledgeScore"
	}
	if uncertainty, ok = floatArg(req, "uncertaintyScore"); !ok {
		return 0, 0, 0, "uncertaintyScore"
	}
	if completeness, ok = floatArg(req, "contextScore"); !ok {
		return 0, 0, 0, "contextScore"
	}
	return knowledge, uncertainty, completeness, ""
}

// ─── PreflightTool ───────────────────────────────────────────────────────────

// PreflightTool handles the task_preflight MCP tool.
type PreflightTool struct {
	deps Deps
}

// NewPreflightTool creates a PreflightTool.
func NewPreflightTool(deps Deps) *PreflightTool {
	return &PreflightTool{deps: deps}
}

// Definition returns the MCP tool definition for task_preflight.
func (t *PreflightTool) Definition() mcp.Tool { return definition(catalog.TaskPreflight) }

// Handle processes the task_preflight tool call.
func (t *PreflightTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.TrimSpace(req.GetString("specFolder", ""))
	taskID := strings.TrimSpace(req.GetString("taskId", ""))
	if folder == "" || taskID == "" {
		return mcp.NewToolResultError("'specFolder' and 'taskId' are required"), nil
	}
	k, u, c, missing := scores(req)
	if missing != "" {
		return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", missing)), nil
	}
	gaps, _ := stringsArg(req, "knowledgeGaps")

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := store.RecordPreflight(memory.PreflightParams{
		SpecFolder:    folder,
		TaskID:        taskID,
		Knowledge:     k,
		Uncertainty:   u,
		Context:       c,
		KnowledgeGaps: gaps,
	})
	if err != nil {
		return nil, err
	}
	return structured(fmt.Sprintf("Preflight recorded for %s/%s: knowledge %.0f, uncertainty %.0f, context %.0f, %d gaps",
		folder, taskID, k, u, c, len(rec.KnowledgeGaps)), rec), nil
}

// ─── PostflightTool ──────────────────────────────────────────────────────────

// PostflightTool handles the task_postflight MCP tool.
type PostflightTool struct {
	deps Deps
}

// NewPostflightTool creates a PostflightTool.
func NewPostflightTool(deps Deps) *PostflightTool {
	return &PostflightTool{deps: deps}
}

// Definition returns the MCP tool definition for task_postflight.
func (t *PostflightTool) Definition() mcp.Tool { return definition(catalog.TaskPostflight) }

// Handle processes the task_postflight tool call.
func (t *PostflightTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.TrimSpace(req.GetString("specFolder", ""))
	taskID := strings.TrimSpace(req.GetString("taskId", ""))
	if folder == "" || taskID == "" {
		return mcp.NewToolResultError("'specFolder' and 'taskId' are required"), nil
	}
	k, u, c, missing := scores(req)
	if missing != "" {
		return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", missing)), nil
	}
	closed, _ := stringsArg(req, "gapsClosed")
	discovered, _ := stringsArg(req, "newGapsDiscovered")

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := store.RecordPostflight(memory.PostflightParams{
		SpecFolder:  folder,
		TaskID:      taskID,
		Knowledge:   k,
		Uncertainty: u,
		Context:     c,
		GapsClosed:  closed,
		NewGaps:     discovered,
	})
	if err != nil {
		return nil, err
	}

	var li float64
	if rec.LearningIndex != nil {
		li = *rec.LearningIndex
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Postflight: %s/%s\n\n", folder, taskID)
	fmt.Fprintf(&b, "- **Knowledge**: %.0f → %.0f\n", rec.PreKnowledge, k)
	fmt.Fprintf(&b, "- **Uncertainty**: %.0f → %.0f\n", rec.PreUncertainty, u)
	fmt.Fprintf(&b, "- **Context**: %.0f → %.0f\n", rec.PreContext, c)
	fmt.Fprintf(&b, "- **Learning index**: %.1f (%s)\n", li, memory.InterpretLearningIndex(li))
	if len(closed)+len(discovered) > 0 {
		fmt.Fprintf(&b, "- **Gaps**: %d closed, %d discovered\n", len(closed), len(discovered))
	}
	return structured(b.String(), rec), nil
}

// ─── LearningHistoryTool ─────────────────────────────────────────────────────

// LearningHistoryTool handles the memory_get_learning_history MCP tool.
type LearningHistoryTool struct {
	deps Deps
}

// NewLearningHistoryTool creates a LearningHistoryTool.
func NewLearningHistoryTool(deps Deps) *LearningHistoryTool {
	return &LearningHistoryTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_get_learning_history.
func (t *LearningHistoryTool) Definition() mcp.Tool {
	return definition(catalog.MemoryGetLearningHistory)
}

// Handle processes the memory_get_learning_history tool call.
func (t *LearningHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.TrimSpace(req.GetString("specFolder", ""))
	if folder == "" {
		return mcp.NewToolResultError("'specFolder' is required"), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	h, err := store.LearningHistory(folder, clampLimit(intArg(req, "limit", 10), 10, 100), boolArg(req, "onlyComplete", false))
	if err != nil {
		return nil, err
	}
	if len(h.Records) == 0 {
		return structured(fmt.Sprintf("No learning records for %s.", folder), h), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Learning History: %s\n\n", folder)
	fmt.Fprintf(&b, "%d records, %d completed, average learning index %.1f (%s)\n\n",
		h.Summary.Total, h.Summary.Completed, h.Summary.AvgLearningIndex,
		memory.InterpretLearningIndex(h.Summary.AvgLearningIndex))
	for _, r := range h.Records {
		if r.LearningIndex != nil {
			fmt.Fprintf(&b, "- %s: LI %.1f (%s)\n", r.TaskID, *r.LearningIndex, r.Phase)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", r.TaskID, r.Phase)
		}
	}
	return structured(b.String(), h), nil
}
