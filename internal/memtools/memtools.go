// Package memtools provides the MCP tool handlers of the memory system.
//
// Each tool handler follows the same pattern:
//   - A struct with its dependencies injected via constructor
//   - Definition() returns the mcp.Tool schema from the catalogue
//   - Handle() processes the request and returns a result
//
// Caller mistakes (missing or malformed arguments) come back as tool error
// results. Storage and provider failures come back as Go errors so the
// request handler can classify them and attach a recovery hint.
package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/recall/internal/cache"
	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/embeddings"
	"github.com/HendryAvila/recall/internal/indexer"
	"github.com/HendryAvila/recall/internal/memory"
)

// Backend hands out the lazily opened storage. Both calls block until the
// store is open and fail if it cannot be opened.
type Backend interface {
	Store(ctx context.Context) (*memory.Store, error)
	Indexer(ctx context.Context) (*indexer.Indexer, error)
}

// Deps are the collaborators shared by every tool.
type Deps struct {
	Backend Backend
	// Embedder is optional. Without it search is lexical only.
	Embedder embeddings.Provider
	// Cache is optional. Read-only tools are cached; writes invalidate it.
	Cache *cache.Cache[*mcp.CallToolResult]
	// Diagnostics adds runtime state (jobs, recovery, cache) to memory_health.
	Diagnostics func() map[string]any
	Logger      *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Tool is one MCP tool handler.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Set maps every catalogue name to its handler.
type Set struct {
	deps     Deps
	handlers map[string]server.ToolHandlerFunc
	tools    []Tool
}

// NewSet builds the 22 tools.
func NewSet(deps Deps) *Set {
	tools := []Tool{
		NewContextTool(deps),
		NewSearchTool(deps),
		NewMatchTriggersTool(deps),
		NewSaveTool(deps),
		NewListTool(deps),
		NewStatsTool(deps),
		NewHealthTool(deps),
		NewDeleteTool(deps),
		NewUpdateTool(deps),
		NewValidateTool(deps),
		NewCheckpointCreateTool(deps),
		NewCheckpointListTool(deps),
		NewCheckpointRestoreTool(deps),
		NewCheckpointDeleteTool(deps),
		NewPreflightTool(deps),
		NewPostflightTool(deps),
		NewDriftWhyTool(deps),
		NewCausalLinkTool(deps),
		NewCausalStatsTool(deps),
		NewCausalUnlinkTool(deps),
		NewIndexScanTool(deps),
		NewLearningHistoryTool(deps),
	}
	s := &Set{deps: deps, handlers: make(map[string]server.ToolHandlerFunc, len(tools)), tools: tools}
	for _, t := range tools {
		def := t.Definition()
		h := t.Handle
		if def.Annotations.ReadOnlyHint != nil && *def.Annotations.ReadOnlyHint {
			h = s.cached(def.Name, h)
		} else {
			h = s.invalidating(h)
		}
		s.handlers[def.Name] = h
	}
	return s
}

// Tools returns the handlers in catalogue order.
func (s *Set) Tools() []Tool { return s.tools }

// Resolve returns the handler registered for name.
func (s *Set) Resolve(name string) (server.ToolHandlerFunc, bool) {
	h, ok := s.handlers[name]
	return h, ok
}

func (s *Set) cached(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := s.deps.Cache
		if c == nil {
			return next(ctx, req)
		}
		key := cache.Key(name, req.GetArguments())
		if hit, ok := c.Get(key); ok {
			return cloneResult(hit), nil
		}
		// A write finishing while next runs makes res stale.
		gen := c.Generation()
		res, err := next(ctx, req)
		if err == nil && res != nil && !res.IsError {
			c.SetIfGeneration(key, cloneResult(res), gen)
		}
		return res, err
	}
}

func (s *Set) invalidating(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := next(ctx, req)
		if c := s.deps.Cache; c != nil && err == nil && res != nil && !res.IsError {
			c.Invalidate()
		}
		return res, err
	}
}

// cloneResult copies the envelope so per-call _meta never leaks into the
// cached value.
func cloneResult(r *mcp.CallToolResult) *mcp.CallToolResult {
	c := *r
	c.Meta = nil
	return &c
}

func definition(name string) mcp.Tool {
	t, ok := catalog.Lookup(name)
	if !ok {
		panic("memtools: no catalogue entry for " + name)
	}
	return t
}

// ─── Argument helpers ────────────────────────────────────────────────────────

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// floatArg extracts a number argument and whether it was present.
func floatArg(req mcp.CallToolRequest, key string) (float64, bool) {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringsArg extracts a list of strings, skipping non-string items.
func stringsArg(req mcp.CallToolRequest, key string) ([]string, bool) {
	switch v := req.GetArguments()[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// structured builds a result carrying a text rendering and the raw value.
func structured(text string, v any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(text)},
		StructuredContent: v,
	}
}

func clampLimit(v, def, maxVal int) int {
	if v <= 0 {
		return def
	}
	return min(v, maxVal)
}

func folderSuffix(folder string) string {
	if folder == "" {
		return ""
	}
	return fmt.Sprintf(" in %s", folder)
}
