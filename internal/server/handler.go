package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/hooks"
	"github.com/HendryAvila/recall/internal/telemetry"
	"github.com/HendryAvila/recall/internal/toolerr"
)

// Keys written into the _meta object of every result.
const (
	MetaCallID          = "callId"
	MetaAutoSurfacedCtx = "autoSurfacedContext"
)

// CallRequest is one tool invocation, independent of the transport.
type CallRequest struct {
	Name      string
	Arguments map[string]any
	// ProgressToken, when the client sent one, becomes the call id.
	ProgressToken mcp.ProgressToken
}

// HandlerConfig holds the collaborators of a Handler.
type HandlerConfig struct {
	Dispatcher *Dispatcher
	// Gate runs before anything else, typically the lazy storage open.
	Gate     func(ctx context.Context) error
	Surfacer *hooks.Surfacer
	Notifier *Notifier
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Handler is the per-call pipeline and the error boundary around it.
type Handler struct {
	dispatcher *Dispatcher
	gate       func(ctx context.Context) error
	surfacer   *hooks.Surfacer
	notifier   *Notifier
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewNotifier(logger)
	}
	return &Handler{
		dispatcher: cfg.Dispatcher,
		gate:       cfg.Gate,
		surfacer:   cfg.Surfacer,
		notifier:   notifier,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// HandleCall runs one call and always returns a result. Failures come back
// as IsError results carrying a code and a recovery hint.
func (h *Handler) HandleCall(ctx context.Context, call CallRequest) *mcp.CallToolResult {
	start := time.Now()
	callID := callIDFor(call.ProgressToken)
	logger := h.logger.With("tool", call.Name, "call_id", callID)

	res, err := h.run(ctx, call)
	if err != nil {
		logger.Warn("tool call failed", "code", toolerr.CodeFor(err), "error", err)
		res = toolerr.BuildErrorResponse(call.Name, err, call.Arguments)
	}

	if estimate, budget, over := catalog.OverBudget(call.Name, res); over {
		logger.Warn("response exceeds token budget", "budget", budget, "estimate", estimate)
		if h.metrics != nil {
			h.metrics.RecordBudgetOverrun(ctx, call.Name)
		}
	}

	if !res.IsError && hooks.IsMemoryAware(call.Name) {
		h.surface(ctx, logger, call, res)
	}
	setMeta(res, MetaCallID, callID)

	h.notifier.Notify(withDuration(ctx, time.Since(start)), call.Name, callID, res)
	return res
}

// run is the error boundary: gate, guard and dispatch.
func (h *Handler) run(ctx context.Context, call CallRequest) (*mcp.CallToolResult, error) {
	if h.gate != nil {
		if err := h.gate(ctx); err != nil {
			return nil, err
		}
	}
	if err := ValidateInput(call.Arguments); err != nil {
		return nil, err
	}
	if h.dispatcher == nil {
		return nil, fmt.Errorf("no dispatcher configured: %w", toolerr.ErrInternal)
	}
	return h.dispatcher.Dispatch(ctx, call.Name, call.Arguments)
}

func (h *Handler) surface(ctx context.Context, logger *slog.Logger, call CallRequest, res *mcp.CallToolResult) {
	if h.surfacer == nil {
		return
	}
	hint, ok := hooks.ExtractHint(call.Arguments)
	if !ok {
		return
	}
	surfaced, err := h.surfacer.Surface(ctx, hint)
	if err != nil {
		logger.Warn("auto-surface failed", "error", err)
		if h.metrics != nil {
			h.metrics.RecordSurfaceFailure(ctx, call.Name)
		}
		return
	}
	setMeta(res, MetaAutoSurfacedCtx, surfaced)
}

// ToolHandler adapts the pipeline to mcp-go for one registered tool.
func (h *Handler) ToolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := CallRequest{Name: name, Arguments: req.GetArguments()}
		if req.Params.Meta != nil {
			call.ProgressToken = req.Params.Meta.ProgressToken
		}
		return h.HandleCall(ctx, call), nil
	}
}

func callIDFor(token mcp.ProgressToken) string {
	switch v := token.(type) {
	case nil:
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
	return ulid.Make().String()
}

func setMeta(res *mcp.CallToolResult, key string, v any) {
	if res.Meta == nil {
		res.Meta = &mcp.Meta{}
	}
	if res.Meta.AdditionalFields == nil {
		res.Meta.AdditionalFields = make(map[string]any)
	}
	res.Meta.AdditionalFields[key] = v
}

// MetaValue returns a _meta field of res.
func MetaValue(res *mcp.CallToolResult, key string) (any, bool) {
	if res == nil || res.Meta == nil {
		return nil, false
	}
	v, ok := res.Meta.AdditionalFields[key]
	return v, ok
}

type durationKey struct{}

func withDuration(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, durationKey{}, d)
}

// CallDuration returns how long the call took, as seen by subscribers.
func CallDuration(ctx context.Context) time.Duration {
	d, _ := ctx.Value(durationKey{}).(time.Duration)
	return d
}
