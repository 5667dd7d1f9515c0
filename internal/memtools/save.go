package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// ─── SaveTool ────────────────────────────────────────────────────────────────

// SaveTool handles the memory_save MCP tool.
type SaveTool struct {
	deps Deps
}

// NewSaveTool creates a SaveTool.
func NewSaveTool(deps Deps) *SaveTool {
	return &SaveTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_save.
func (t *SaveTool) Definition() mcp.Tool { return definition(catalog.MemorySave) }

// SaveResponse is the structured body of memory_save.
type SaveResponse struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	Title      string `json:"title"`
	SpecFolder string `json:"spec_folder"`
	FilePath   string `json:"file_path"`
	Embedding  string `json:"embedding_status"`
}

// Handle processes the memory_save tool call.
func (t *SaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath := req.GetString("filePath", "")
	if strings.TrimSpace(filePath) == "" {
		return mcp.NewToolResultError("'filePath' is required"), nil
	}

	ix, err := t.deps.Backend.Indexer(ctx)
	if err != nil {
		return nil, err
	}
	doc, res, err := ix.IndexFile(ctx, filePath, boolArg(req, "force", false))
	if err != nil {
		return nil, err
	}

	resp := SaveResponse{
		ID:         res.ID,
		Status:     res.Status,
		Title:      doc.Title,
		SpecFolder: doc.SpecFolder,
		FilePath:   doc.Path,
		Embedding:  memory.EmbeddingPending,
	}
	if res.Status == memory.SaveUnchanged {
		resp.Embedding = ""
	} else if t.embedNow(ctx, res.ID, doc.Title, doc.Content) {
		resp.Embedding = memory.EmbeddingSuccess
	}

	text := fmt.Sprintf("Memory #%d %s: %q", res.ID, res.Status, doc.Title)
	if doc.SpecFolder != "" {
		text += fmt.Sprintf(" [%s]", doc.SpecFolder)
	}
	if resp.Embedding == memory.EmbeddingPending {
		text += "\nEmbedding queued for the retry job."
	}
	return structured(text, resp), nil
}

// embedNow embeds a freshly written memory inline. Failures leave it pending
// for the retry job.
func (t *SaveTool) embedNow(ctx context.Context, id int64, title, content string) bool {
	if t.deps.Embedder == nil {
		return false
	}
	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return false
	}
	vec, err := t.deps.Embedder.Embed(ctx, memory.EmbeddingText(title, content))
	if err != nil || len(vec) == 0 {
		t.deps.logger().Warn("inline embedding failed, deferring", "id", id, "error", err)
		return false
	}
	if err := store.SetEmbedding(id, t.deps.Embedder.ModelID(), vec); err != nil {
		t.deps.logger().Warn("store embedding failed", "id", id, "error", err)
		return false
	}
	return true
}

// ─── IndexScanTool ───────────────────────────────────────────────────────────

// IndexScanTool handles the memory_index_scan MCP tool.
type IndexScanTool struct {
	deps Deps
}

// NewIndexScanTool creates an IndexScanTool.
func NewIndexScanTool(deps Deps) *IndexScanTool {
	return &IndexScanTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_index_scan.
func (t *IndexScanTool) Definition() mcp.Tool { return definition(catalog.MemoryIndexScan) }

// Handle processes the memory_index_scan tool call.
func (t *IndexScanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ix, err := t.deps.Backend.Indexer(ctx)
	if err != nil {
		return nil, err
	}
	folder := req.GetString("specFolder", "")
	res, err := ix.Scan(ctx, folder, boolArg(req, "force", false))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Index Scan%s\n\n", folderSuffix(folder))
	fmt.Fprintf(&b, "- **Scanned**: %d\n", res.Scanned)
	fmt.Fprintf(&b, "- **Created**: %d\n", res.Created)
	fmt.Fprintf(&b, "- **Updated**: %d\n", res.Updated)
	fmt.Fprintf(&b, "- **Unchanged**: %d\n", res.Unchanged)
	fmt.Fprintf(&b, "- **Failed**: %d\n", res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(&b, "  - %s: %s\n", e.Path, e.Error)
	}
	if res.Scanned == 0 {
		fmt.Fprintf(&b, "\nNo memory files found under %s.\n", ix.BasePath())
	}
	return structured(b.String(), res), nil
}
