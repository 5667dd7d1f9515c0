package memtools

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// ─── DriftWhyTool ────────────────────────────────────────────────────────────

// DriftWhyTool handles the memory_drift_why MCP tool.
type DriftWhyTool struct {
	deps Deps
}

// NewDriftWhyTool creates a DriftWhyTool.
func NewDriftWhyTool(deps Deps) *DriftWhyTool {
	return &DriftWhyTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_drift_why.
func (t *DriftWhyTool) Definition() mcp.Tool { return definition(catalog.MemoryDriftWhy) }

// Handle processes the memory_drift_why tool call.
func (t *DriftWhyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "memoryId", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'memoryId' is required"), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	res, err := store.DriftWhy(int64(id), intArg(req, "maxDepth", 3), req.GetString("direction", "both"))
	if err != nil {
		return nil, err
	}
	res.Memory.Content = memory.Truncate(res.Memory.Content, 300)

	var b strings.Builder
	fmt.Fprintf(&b, "## Why #%d %s\n\n", res.Memory.ID, res.Memory.Title)
	if len(res.Chain) == 0 {
		b.WriteString("No causal links. Use memory_causal_link to record why this memory exists.\n")
		return structured(b.String(), res), nil
	}
	for _, n := range res.Chain {
		arrow := "→"
		if n.Direction == "incoming" {
			arrow = "←"
		}
		fmt.Fprintf(&b, "%s%s %s #%d %s (strength %.2f, edge %d)\n",
			strings.Repeat("  ", max(n.Depth-1, 0)), arrow, n.Relation, n.MemoryID, n.Title, n.Strength, n.EdgeID)
	}
	fmt.Fprintf(&b, "\n%d connected memories, depth %d\n", res.TotalNodes, res.MaxDepth)
	return structured(b.String(), res), nil
}

// ─── CausalLinkTool ──────────────────────────────────────────────────────────

// CausalLinkTool handles the memory_causal_link MCP tool.
type CausalLinkTool struct {
	deps Deps
}

// NewCausalLinkTool creates a CausalLinkTool.
func NewCausalLinkTool(deps Deps) *CausalLinkTool {
	return &CausalLinkTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_causal_link.
func (t *CausalLinkTool) Definition() mcp.Tool { return definition(catalog.MemoryCausalLink) }

// Handle processes the memory_causal_link tool call.
func (t *CausalLinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := intArg(req, "sourceId", 0)
	target := intArg(req, "targetId", 0)
	if source <= 0 || target <= 0 {
		return mcp.NewToolResultError("'sourceId' and 'targetId' are required"), nil
	}
	relation := req.GetString("relation", "")
	if !slices.Contains(memory.CausalRelations, relation) {
		return mcp.NewToolResultError(fmt.Sprintf("'relation' must be one of: %s", strings.Join(memory.CausalRelations, ", "))), nil
	}
	strength, _ := floatArg(req, "strength")

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	edge, err := store.LinkCausal(memory.LinkParams{
		SourceID: int64(source),
		TargetID: int64(target),
		Relation: relation,
		Strength: strength,
		Evidence: req.GetString("evidence", ""),
	})
	if err != nil {
		return nil, err
	}
	return structured(fmt.Sprintf("Linked #%d %s #%d (edge %d, strength %.2f)",
		edge.SourceID, edge.Relation, edge.TargetID, edge.ID, edge.Strength), edge), nil
}

// ─── CausalStatsTool ─────────────────────────────────────────────────────────

// CausalStatsTool handles the memory_causal_stats MCP tool.
type CausalStatsTool struct {
	deps Deps
}

// NewCausalStatsTool creates a CausalStatsTool.
func NewCausalStatsTool(deps Deps) *CausalStatsTool {
	return &CausalStatsTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_causal_stats.
func (t *CausalStatsTool) Definition() mcp.Tool { return definition(catalog.MemoryCausalStats) }

// Handle processes the memory_causal_stats tool call.
func (t *CausalStatsTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	st, err := store.CausalStats()
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("## Causal Graph\n\n")
	fmt.Fprintf(&b, "- **Edges**: %d (avg strength %.2f)\n", st.TotalEdges, st.AvgStrength)
	fmt.Fprintf(&b, "- **Coverage**: %d of %d memories linked (%.0f%%)\n", st.LinkedMemories, st.TotalMemories, st.Coverage*100)
	for _, rel := range slices.Sorted(maps.Keys(st.ByRelation)) {
		fmt.Fprintf(&b, "  - %s: %d\n", rel, st.ByRelation[rel])
	}
	return structured(b.String(), st), nil
}

// ─── CausalUnlinkTool ────────────────────────────────────────────────────────

// CausalUnlinkTool handles the memory_causal_unlink MCP tool.
type CausalUnlinkTool struct {
	deps Deps
}

// NewCausalUnlinkTool creates a CausalUnlinkTool.
func NewCausalUnlinkTool(deps Deps) *CausalUnlinkTool {
	return &CausalUnlinkTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_causal_unlink.
func (t *CausalUnlinkTool) Definition() mcp.Tool { return definition(catalog.MemoryCausalUnlink) }

// Handle processes the memory_causal_unlink tool call.
func (t *CausalUnlinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "edgeId", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'edgeId' is required"), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.UnlinkCausal(int64(id)); err != nil {
		return nil, err
	}
	return structured(fmt.Sprintf("Edge %d removed", id), map[string]any{"deleted": id}), nil
}
