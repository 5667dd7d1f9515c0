// Package resources implements the MCP resources of recall.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (recall://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/recall/internal/memory"
)

// Resource URIs.
const (
	HealthURI = "recall://runtime/health"
	StatsURI  = "recall://memory/stats"
)

// StatsFunc returns workspace-wide memory statistics, opening storage if
// needed.
type StatsFunc func(ctx context.Context) (*memory.Stats, error)

// Handler serves the recall resources.
type Handler struct {
	diagnostics func() map[string]any
	stats       StatsFunc
}

// NewHandler creates a resource Handler.
func NewHandler(diagnostics func() map[string]any, stats StatsFunc) *Handler {
	return &Handler{diagnostics: diagnostics, stats: stats}
}

// HealthResource returns the MCP resource definition for runtime health.
func (h *Handler) HealthResource() mcp.Resource {
	return mcp.NewResource(
		HealthURI,
		"Recall Runtime Health",
		mcp.WithResourceDescription("Startup state, background jobs, cache and recovery counters"),
		mcp.WithMIMEType("application/json"),
	)
}

// StatsResource returns the MCP resource definition for memory statistics.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		StatsURI,
		"Recall Memory Statistics",
		mcp.WithResourceDescription("Memory totals by tier, embedding status and spec folder"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleHealth returns the runtime diagnostics as JSON.
func (h *Handler) HandleHealth(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.diagnostics == nil {
		return errorResource(req.Params.URI, "diagnostics unavailable"), nil
	}
	return jsonResource(req.Params.URI, h.diagnostics())
}

// HandleStats returns the memory statistics as JSON. Storage failures are
// reported in the resource body rather than as protocol errors.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.stats == nil {
		return errorResource(req.Params.URI, "statistics unavailable"), nil
	}
	st, err := h.stats(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, st)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("resources: marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
