package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// ─── CheckpointCreateTool ────────────────────────────────────────────────────

// CheckpointCreateTool handles the checkpoint_create MCP tool.
type CheckpointCreateTool struct {
	deps Deps
}

// NewCheckpointCreateTool creates a CheckpointCreateTool.
func NewCheckpointCreateTool(deps Deps) *CheckpointCreateTool {
	return &CheckpointCreateTool{deps: deps}
}

// Definition returns the MCP tool definition for checkpoint_create.
func (t *CheckpointCreateTool) Definition() mcp.Tool { return definition(catalog.CheckpointCreate) }

// Handle processes the checkpoint_create tool call.
func (t *CheckpointCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	cp, err := store.CreateCheckpoint(name, req.GetString("specFolder", ""))
	if err != nil {
		return nil, err
	}
	return structured(fmt.Sprintf("Checkpoint %q created%s: %d memories, %d edges",
		cp.Name, folderSuffix(cp.SpecFolder), cp.MemoryCount, cp.EdgeCount), cp), nil
}

// ─── CheckpointListTool ──────────────────────────────────────────────────────

// CheckpointListTool handles the checkpoint_list MCP tool.
type CheckpointListTool struct {
	deps Deps
}

// NewCheckpointListTool creates a CheckpointListTool.
func NewCheckpointListTool(deps Deps) *CheckpointListTool {
	return &CheckpointListTool{deps: deps}
}

// Definition returns the MCP tool definition for checkpoint_list.
func (t *CheckpointListTool) Definition() mcp.Tool { return definition(catalog.CheckpointList) }

// Handle processes the checkpoint_list tool call.
func (t *CheckpointListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	list, err := store.ListCheckpoints(req.GetString("specFolder", ""), clampLimit(intArg(req, "limit", 50), 50, 200))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []memory.Checkpoint{}
	}
	body := map[string]any{"checkpoints": list}
	if len(list) == 0 {
		return structured("No checkpoints found.", body), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Checkpoints (%d)\n\n", len(list))
	for _, cp := range list {
		fmt.Fprintf(&b, "- %s%s | %d memories, %d edges | %s\n",
			cp.Name, folderSuffix(cp.SpecFolder), cp.MemoryCount, cp.EdgeCount, cp.CreatedAt)
	}
	return structured(b.String(), body), nil
}

// ─── CheckpointRestoreTool ───────────────────────────────────────────────────

// CheckpointRestoreTool handles the checkpoint_restore MCP tool.
type CheckpointRestoreTool struct {
	deps Deps
}

// NewCheckpointRestoreTool creates a CheckpointRestoreTool.
func NewCheckpointRestoreTool(deps Deps) *CheckpointRestoreTool {
	return &CheckpointRestoreTool{deps: deps}
}

// Definition returns the MCP tool definition for checkpoint_restore.
func (t *CheckpointRestoreTool) Definition() mcp.Tool { return definition(catalog.CheckpointRestore) }

// Handle processes the checkpoint_restore tool call.
func (t *CheckpointRestoreTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	res, err := store.RestoreCheckpoint(name, boolArg(req, "clearExisting", false))
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Restored checkpoint %q: %d memories restored, %d skipped, %d edges",
		res.Checkpoint.Name, res.Restored, res.Skipped, res.EdgesRestored)
	if res.Cleared > 0 {
		text += fmt.Sprintf(" (%d existing memories cleared)", res.Cleared)
	}
	if res.Restored > 0 {
		text += "\nRestored memories are re-embedded by the retry job."
	}
	return structured(text, res), nil
}

// ─── CheckpointDeleteTool ────────────────────────────────────────────────────

// CheckpointDeleteTool handles the checkpoint_delete MCP tool.
type CheckpointDeleteTool struct {
	deps Deps
}

// NewCheckpointDeleteTool creates a CheckpointDeleteTool.
func NewCheckpointDeleteTool(deps Deps) *CheckpointDeleteTool {
	return &CheckpointDeleteTool{deps: deps}
}

// Definition returns the MCP tool definition for checkpoint_delete.
func (t *CheckpointDeleteTool) Definition() mcp.Tool { return definition(catalog.CheckpointDelete) }

// Handle processes the checkpoint_delete tool call.
func (t *CheckpointDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.DeleteCheckpoint(name); err != nil {
		return nil, err
	}
	return structured(fmt.Sprintf("Checkpoint %q deleted", name), map[string]any{"deleted": name}), nil
}
