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

// ─── ListTool ────────────────────────────────────────────────────────────────

// ListTool handles the memory_list MCP tool.
type ListTool struct {
	deps Deps
}

// NewListTool creates a ListTool.
func NewListTool(deps Deps) *ListTool {
	return &ListTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_list.
func (t *ListTool) Definition() mcp.Tool { return definition(catalog.MemoryList) }

// ListResponse is the structured body of memory_list.
type ListResponse struct {
	Memories []memory.Memory `json:"memories"`
	Total    int             `json:"total"`
	Offset   int             `json:"offset"`
}

// Handle processes the memory_list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tier := req.GetString("tier", "")
	if tier != "" && !memory.ValidTier(tier) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown tier %q", tier)), nil
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}

	offset := max(intArg(req, "offset", 0), 0)
	list, total, err := store.List(memory.ListOptions{
		SpecFolder: req.GetString("specFolder", ""),
		Tier:       tier,
		Limit:      clampLimit(intArg(req, "limit", 20), 20, 100),
		Offset:     offset,
		SortBy:     req.GetString("sortBy", ""),
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []memory.Memory{}
	}
	for i := range list {
		list[i].Content = ""
	}
	resp := ListResponse{Memories: list, Total: total, Offset: offset}

	if total == 0 {
		return structured("No memories stored yet.", resp), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Memories (%d total)\n\n", total)
	for _, m := range list {
		folder := m.SpecFolder
		if folder == "" {
			folder = "-"
		}
		fmt.Fprintf(&b, "- #%d [%s] %s | %s | updated %s\n", m.ID, m.ImportanceTier, m.Title, folder, m.UpdatedAt)
	}
	b.WriteString(memory.NavigationHint(offset+len(list), total, "Use offset to page."))
	return structured(b.String(), resp), nil
}

// ─── StatsTool ───────────────────────────────────────────────────────────────

// StatsTool handles the memory_stats MCP tool.
type StatsTool struct {
	deps Deps
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(deps Deps) *StatsTool {
	return &StatsTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_stats.
func (t *StatsTool) Definition() mcp.Tool { return definition(catalog.MemoryStats) }

// Handle processes the memory_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	folder := req.GetString("specFolder", "")
	stats, err := store.Stats(folder)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Memory Statistics%s\n\n", folderSuffix(folder))
	fmt.Fprintf(&sb, "- **Memories**: %d (%d archived)\n", stats.TotalMemories, stats.Archived)
	sb.WriteString("- **By tier**:")
	for _, tier := range memory.Tiers() {
		if n := stats.ByTier[tier]; n > 0 {
			fmt.Fprintf(&sb, " %s=%d", tier, n)
		}
	}
	sb.WriteString("\n- **Embeddings**:")
	for _, status := range slices.Sorted(maps.Keys(stats.ByEmbedding)) {
		fmt.Fprintf(&sb, " %s=%d", status, stats.ByEmbedding[status])
	}
	sb.WriteString("\n")
	if len(stats.SpecFolders) > 0 {
		fmt.Fprintf(&sb, "- **Spec folders** (%d):\n", len(stats.SpecFolders))
		for _, f := range stats.SpecFolders {
			name := f.SpecFolder
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(&sb, "  - %s: %d\n", name, f.Count)
		}
	}
	if stats.LastIndexedAt != "" {
		fmt.Fprintf(&sb, "- **Last indexed**: %s\n", stats.LastIndexedAt)
	}
	return structured(sb.String(), stats), nil
}

// ─── HealthTool ──────────────────────────────────────────────────────────────

// HealthTool handles the memory_health MCP tool.
type HealthTool struct {
	deps Deps
}

// NewHealthTool creates a HealthTool.
func NewHealthTool(deps Deps) *HealthTool {
	return &HealthTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_health.
func (t *HealthTool) Definition() mcp.Tool { return definition(catalog.MemoryHealth) }

// HealthResponse is the structured body of memory_health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Database *memory.Health `json:"database"`
	Embedder map[string]any `json:"embedder,omitempty"`
	Runtime  map[string]any `json:"runtime,omitempty"`
}

// Handle processes the memory_health tool call.
func (t *HealthTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	h, err := store.Health()
	if err != nil {
		return nil, err
	}

	resp := HealthResponse{Status: "healthy", Database: h}
	if !h.DatabaseOK {
		resp.Status = "degraded"
	}
	if e := t.deps.Embedder; e != nil {
		resp.Embedder = map[string]any{"model": e.ModelID(), "dimensions": e.Dimensions()}
	}
	if t.deps.Diagnostics != nil {
		resp.Runtime = t.deps.Diagnostics()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Memory Health: %s\n\n", resp.Status)
	fmt.Fprintf(&sb, "- **Database**: %s (%s, %d bytes)\n", h.Integrity, h.Path, h.SizeBytes)
	fmt.Fprintf(&sb, "- **Schema**: v%s\n", h.SchemaVersion)
	fmt.Fprintf(&sb, "- **Memories**: %d\n", h.Memories)
	fmt.Fprintf(&sb, "- **Embeddings**: %d pending, %d failed\n", h.PendingEmbeddings, h.FailedEmbeddings)
	if resp.Embedder != nil {
		fmt.Fprintf(&sb, "- **Embedder**: %v (%v dims)\n", resp.Embedder["model"], resp.Embedder["dimensions"])
	}
	for _, k := range slices.Sorted(maps.Keys(resp.Runtime)) {
		fmt.Fprintf(&sb, "- **%s**: %v\n", k, resp.Runtime[k])
	}
	return structured(sb.String(), resp), nil
}

// ─── DeleteTool ──────────────────────────────────────────────────────────────

// DeleteTool handles the memory_delete MCP tool.
type DeleteTool struct {
	deps Deps
}

// NewDeleteTool creates a DeleteTool.
func NewDeleteTool(deps Deps) *DeleteTool {
	return &DeleteTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_delete.
func (t *DeleteTool) Definition() mcp.Tool { return definition(catalog.MemoryDelete) }

// Handle processes the memory_delete tool call.
func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "id", 0)
	folder := req.GetString("specFolder", "")
	if id <= 0 && folder == "" {
		return mcp.NewToolResultError("either 'id' or 'specFolder' is required"), nil
	}

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}

	if id > 0 {
		if err := store.Delete(int64(id)); err != nil {
			return nil, err
		}
		return structured(fmt.Sprintf("Memory %d deleted", id), map[string]any{"deleted": 1, "id": id}), nil
	}

	if !boolArg(req, "confirm", false) {
		return mcp.NewToolResultError(fmt.Sprintf("deleting every memory in %s requires 'confirm': true", folder)), nil
	}
	n, err := store.DeleteBySpecFolder(folder)
	if err != nil {
		return nil, err
	}
	return structured(fmt.Sprintf("Deleted %d memories in %s", n, folder),
		map[string]any{"deleted": n, "spec_folder": folder}), nil
}

// ─── UpdateTool ──────────────────────────────────────────────────────────────

// UpdateTool handles the memory_update MCP tool.
type UpdateTool struct {
	deps Deps
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(deps Deps) *UpdateTool {
	return &UpdateTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_update.
func (t *UpdateTool) Definition() mcp.Tool { return definition(catalog.MemoryUpdate) }

// Handle processes the memory_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	var p memory.UpdateParams
	args := req.GetArguments()
	if v, ok := args["title"].(string); ok {
		p.Title = &v
	}
	if v, ok := stringsArg(req, "triggerPhrases"); ok {
		p.TriggerPhrases = &v
	}
	if v, ok := args["importanceTier"].(string); ok {
		p.ImportanceTier = &v
	}
	if v, ok := floatArg(req, "importanceWeight"); ok {
		p.ImportanceWeight = &v
	}
	if p.Title == nil && p.TriggerPhrases == nil && p.ImportanceTier == nil && p.ImportanceWeight == nil {
		return mcp.NewToolResultError("nothing to update: provide title, triggerPhrases, importanceTier or importanceWeight"), nil
	}

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	m, err := store.Update(int64(id), p)
	if err != nil {
		return nil, err
	}
	m.Content = ""
	return structured(fmt.Sprintf("Memory %d updated: %q [%s, weight %.2f]", m.ID, m.Title, m.ImportanceTier, m.ImportanceWeight), m), nil
}

// ─── ValidateTool ────────────────────────────────────────────────────────────

// ValidateTool handles the memory_validate MCP tool.
type ValidateTool struct {
	deps Deps
}

// NewValidateTool creates a ValidateTool.
func NewValidateTool(deps Deps) *ValidateTool {
	return &ValidateTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_validate.
func (t *ValidateTool) Definition() mcp.Tool { return definition(catalog.MemoryValidate) }

// Handle processes the memory_validate tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	useful, ok := req.GetArguments()["wasUseful"].(bool)
	if !ok {
		return mcp.NewToolResultError("'wasUseful' is required"), nil
	}

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	m, err := store.Validate(int64(id), useful)
	if err != nil {
		return nil, err
	}
	m.Content = ""
	return structured(fmt.Sprintf("Memory %d confidence is now %.2f after %d validations", m.ID, m.Confidence, m.ValidationCount), m), nil
}
