package memtools

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// Retrieval modes of memory_context.
const (
	ModeAuto    = "auto"
	ModeQuick   = "quick"
	ModeDeep    = "deep"
	ModeFocused = "focused"
)

// quickQueryRunes is the longest query auto mode still answers in quick mode.
const quickQueryRunes = 60

// ContextTool handles the memory_context MCP tool.
type ContextTool struct {
	deps Deps
}

// NewContextTool creates a ContextTool.
func NewContextTool(deps Deps) *ContextTool {
	return &ContextTool{deps: deps}
}

// Definition returns the MCP tool definition for memory_context.
func (t *ContextTool) Definition() mcp.Tool { return definition(catalog.MemoryContext) }

// ContextResponse is the structured body of memory_context.
type ContextResponse struct {
	Mode           string                `json:"mode"`
	SpecFolder     string                `json:"spec_folder,omitempty"`
	Constitutional []memory.Memory       `json:"constitutional"`
	Triggered      []memory.TriggerMatch `json:"triggered"`
	Results        []memory.SearchResult `json:"results"`
	Semantic       bool                  `json:"semantic"`
}

// ResolveMode picks the concrete mode for a request. Auto answers short
// queries in quick mode and longer ones in deep mode. Deep mode with a spec
// folder becomes focused.
func ResolveMode(mode, query, specFolder string) string {
	switch mode {
	case ModeQuick, ModeDeep, ModeFocused:
	default:
		if utf8.RuneCountInString(query) <= quickQueryRunes {
			mode = ModeQuick
		} else {
			mode = ModeDeep
		}
	}
	if mode == ModeDeep && specFolder != "" {
		mode = ModeFocused
	}
	return mode
}

// Handle processes the memory_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	folder := req.GetString("specFolder", "")
	mode := ResolveMode(req.GetString("mode", ModeAuto), query, folder)
	if mode == ModeFocused && folder == "" {
		return mcp.NewToolResultError("mode 'focused' requires 'specFolder'"), nil
	}

	store, err := t.deps.Backend.Store(ctx)
	if err != nil {
		return nil, err
	}

	resp := ContextResponse{Mode: mode, SpecFolder: folder}
	if resp.Constitutional, err = store.Constitutional(5); err != nil {
		return nil, err
	}

	switch mode {
	case ModeQuick:
		limit := clampLimit(intArg(req, "limit", 5), 5, 20)
		if resp.Triggered, err = store.MatchTriggers(query, folder, limit); err != nil {
			return nil, err
		}
		if len(resp.Triggered) == 0 {
			// Quick mode never waits on the embedding provider.
			resp.Results, err = store.Search(memory.SearchOptions{Query: query, SpecFolder: folder, Limit: limit})
		}
	default:
		limit := clampLimit(intArg(req, "limit", 10), 10, 20)
		resp.Results, resp.Semantic, err = search(ctx, t.deps, store,
			memory.SearchOptions{Query: query, SpecFolder: folder, Limit: limit})
	}
	if err != nil {
		return nil, err
	}
	if resp.Constitutional == nil {
		resp.Constitutional = []memory.Memory{}
	}
	if resp.Triggered == nil {
		resp.Triggered = []memory.TriggerMatch{}
	}
	if resp.Results == nil {
		resp.Results = []memory.SearchResult{}
	}

	ids := searchIDs(resp.Results)
	for _, m := range resp.Triggered {
		ids = append(ids, m.ID)
	}
	markAccessed(t.deps, store, ids)

	return structured(renderContext(resp), resp), nil
}

func renderContext(resp ContextResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Memory Context (%s)\n", resp.Mode)

	if len(resp.Constitutional) > 0 {
		b.WriteString("\n### Always applies\n")
		for _, m := range resp.Constitutional {
			fmt.Fprintf(&b, "- **%s**: %s\n", m.Title, memory.Truncate(m.Content, 200))
		}
	}
	if len(resp.Triggered) > 0 {
		b.WriteString("\n### Triggered\n")
		for _, m := range resp.Triggered {
			fmt.Fprintf(&b, "- #%d %s (matched: %s)\n", m.ID, m.Title, strings.Join(m.MatchedPhrases, ", "))
		}
	}
	if len(resp.Results) > 0 {
		b.WriteString("\n### Relevant\n")
		for _, r := range resp.Results {
			fmt.Fprintf(&b, "- #%d [%s] %s: %s\n", r.ID, r.ImportanceTier, r.Title, memory.Truncate(r.Content, 200))
		}
	}
	if len(resp.Constitutional)+len(resp.Triggered)+len(resp.Results) == 0 {
		fmt.Fprintf(&b, "\nNo memories found%s.\n", folderSuffix(resp.SpecFolder))
	}
	return b.String()
}
