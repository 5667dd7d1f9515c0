package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// ─── SearchTool ──────────────────────────────────────────────────────────────

// SearchTool handles the memory_search MCP tool.
type SearchTool struct {
	deps Deps
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(deps Deps) *SearchTool {
	return &SearchTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_search.
func (t *SearchTool) Definition() mcp.Tool { return definition(catalog.MemorySearch) }

// SearchResponse is the structured body of memory_search.
type SearchResponse struct {
	Query    string                `json:"query,omitempty"`
	Semantic bool                  `json:"semantic"`
	Results  []memory.SearchResult `json:"results"`
}

// Handle processes the memory_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	concepts, _ := stringsArg(req, "concepts")
	tier := req.GetString("tier", "")
	if tier != "" && !memory.ValidTier(tier) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown tier %q", tier)), nil
	}

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	results, semantic, err := search(ctx, t.deps, store, memory.SearchOptions{
		Query:      query,
		Concepts:   concepts,
		SpecFolder: req.GetString("specFolder", ""),
		Tier:       tier,
		Limit:      clampLimit(intArg(req, "limit", 10), 10, 20),
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	markAccessed(t.deps, store, searchIDs(results))

	resp := SearchResponse{Query: query, Semantic: semantic, Results: results}
	if len(results) == 0 {
		return structured("No memories found matching your query.", resp), nil
	}

	level := memory.ParseDetailLevel(req.GetString("detail_level", ""))
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories", len(results))
	if semantic {
		b.WriteString(" (semantic re-rank)")
	}
	b.WriteString(":\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] #%d (%s) %s\n", i+1, r.ID, r.ImportanceTier, r.Title)
		if r.SpecFolder != "" {
			fmt.Fprintf(&b, "    folder: %s | score: %.3f\n", r.SpecFolder, r.Score)
		}
		if body := memory.Render(r.Content, level, 300); body != "" {
			fmt.Fprintf(&b, "    %s\n", body)
		}
		b.WriteString("\n")
	}
	return structured(b.String(), resp), nil
}

// search runs a store search, embedding the query first when an embedder is
// configured. An embedding failure degrades to lexical search.
func search(ctx context.Context, deps Deps, store *memory.Store, opts memory.SearchOptions) ([]memory.SearchResult, bool, error) {
	text := opts.Query
	if text == "" {
		text = strings.Join(opts.Concepts, " ")
	}
	if deps.Embedder != nil && strings.TrimSpace(text) != "" {
		vec, err := deps.Embedder.Embed(ctx, text)
		if err != nil {
			deps.logger().Warn("query embedding failed, using lexical search", "error", err)
		} else {
			opts.QueryVector = vec
		}
	}
	results, err := store.Search(opts)
	if err != nil {
		return nil, false, err
	}
	return results, len(opts.QueryVector) > 0, nil
}

func searchIDs(results []memory.SearchResult) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func markAccessed(deps Deps, store *memory.Store, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if err := store.MarkAccessed(ids...); err != nil {
		deps.logger().Warn("mark accessed failed", "error", err)
	}
}

// ─── MatchTriggersTool ───────────────────────────────────────────────────────

// MatchTriggersTool handles the memory_match_triggers MCP tool.
type MatchTriggersTool struct {
	deps Deps
}

// NewMatchTriggersTool creates a MatchTriggersTool.
func NewMatchTriggersTool(deps Deps) *MatchTriggersTool {
	return &MatchTriggersTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_match_triggers.
func (t *MatchTriggersTool) Definition() mcp.Tool { return definition(catalog.MemoryMatchTriggers) }

// Handle processes the memory_match_triggers tool call.
func (t *MatchTriggersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := req.GetString("prompt", "")
	if strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := store.MatchTriggers(prompt, req.GetString("specFolder", ""), clampLimit(intArg(req, "limit", 5), 5, 20))
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []memory.TriggerMatch{}
	}
	if len(matches) == 0 {
		return structured("No trigger phrases matched.", map[string]any{"matches": matches}), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d memories matched:\n\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "- #%d %s (%s) matched: %s\n", m.ID, m.Title, m.ImportanceTier, strings.Join(m.MatchedPhrases, ", "))
	}
	return structured(b.String(), map[string]any{"matches": matches}), nil
}
