package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/HendryAvila/recall"

// Metrics holds the instruments recorded by the request handler and the
// lifecycle sequencers.
type Metrics struct {
	ToolCalls        metric.Int64Counter
	ToolDuration     metric.Float64Histogram
	BudgetOverruns   metric.Int64Counter
	CallbackFailures metric.Int64Counter
	SurfaceFailures  metric.Int64Counter
	RecoveredFiles   metric.Int64Counter
}

// NewMetrics creates all instruments from the given provider. A nil provider
// means the global one, which is a no-op until an SDK is installed.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.ToolCalls, err = meter.Int64Counter("recall.tool.calls",
		metric.WithDescription("Completed tool calls by tool and status"),
	); err != nil {
		return nil, err
	}
	if m.ToolDuration, err = meter.Float64Histogram("recall.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.BudgetOverruns, err = meter.Int64Counter("recall.tool.budget_overruns",
		metric.WithDescription("Responses whose estimated size exceeded the tool token budget"),
	); err != nil {
		return nil, err
	}
	if m.CallbackFailures, err = meter.Int64Counter("recall.callback.failures",
		metric.WithDescription("After-call subscribers that returned an error or panicked"),
	); err != nil {
		return nil, err
	}
	if m.SurfaceFailures, err = meter.Int64Counter("recall.surface.failures",
		metric.WithDescription("Auto-surface lookups that failed"),
	); err != nil {
		return nil, err
	}
	if m.RecoveredFiles, err = meter.Int64Counter("recall.recovery.files",
		metric.WithDescription("Pending files handled by the startup recovery scan, by outcome"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCall records one finished tool call.
func (m *Metrics) RecordCall(ctx context.Context, tool string, isError bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if isError {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool), attribute.String("status", status))
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordBudgetOverrun counts a response over its token budget.
func (m *Metrics) RecordBudgetOverrun(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.BudgetOverruns.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordCallbackFailure counts a failed after-call subscriber.
func (m *Metrics) RecordCallbackFailure(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.CallbackFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordSurfaceFailure counts a failed auto-surface lookup.
func (m *Metrics) RecordSurfaceFailure(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.SurfaceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordRecovery adds the outcome counts of a recovery scan.
func (m *Metrics) RecordRecovery(ctx context.Context, recovered, failed int) {
	if m == nil {
		return
	}
	m.RecoveredFiles.Add(ctx, int64(recovered), metric.WithAttributes(attribute.String("outcome", "recovered")))
	m.RecoveredFiles.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}
