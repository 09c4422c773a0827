package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/session-labs/sessiontree"
)

// MetricsHandler translates engine events into OpenTelemetry metrics.
// It records counters for node completions, failures, aborts and skips,
// and histograms for node and run durations.
type MetricsHandler struct {
	nodeCompletions metric.Int64Counter
	nodeFailures    metric.Int64Counter
	nodeAborts      metric.Int64Counter
	childSkips      metric.Int64Counter
	nodeDuration    metric.Float64Histogram
	runDuration     metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording engine metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	completions, err := meter.Int64Counter("sessiontree.node.completions",
		metric.WithDescription("Number of nodes that ran to completion"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("sessiontree.node.failures",
		metric.WithDescription("Number of node failures"),
	)
	if err != nil {
		return nil, err
	}

	aborts, err := meter.Int64Counter("sessiontree.node.aborts",
		metric.WithDescription("Number of subtree aborts consumed at checkpoints"),
	)
	if err != nil {
		return nil, err
	}

	skips, err := meter.Int64Counter("sessiontree.child.skips",
		metric.WithDescription("Number of children skipped at checkpoints"),
	)
	if err != nil {
		return nil, err
	}

	nodeDur, err := meter.Float64Histogram("sessiontree.node.duration",
		metric.WithDescription("Duration of node execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("sessiontree.run.duration",
		metric.WithDescription("Duration of session run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		nodeCompletions: completions,
		nodeFailures:    failures,
		nodeAborts:      aborts,
		childSkips:      skips,
		nodeDuration:    nodeDur,
		runDuration:     runDur,
	}, nil
}

// Handle processes an engine event and records the appropriate metrics.
// Pass it to a node as its event handler.
func (h *MetricsHandler) Handle(e sessiontree.Event) {
	ctx := context.Background()
	nodeAttrs := metric.WithAttributes(
		attribute.String("node", e.Node),
	)

	switch e.Kind {
	case sessiontree.EventNodeFinished:
		h.nodeCompletions.Add(ctx, 1, nodeAttrs)
		h.nodeDuration.Record(ctx, e.Elapsed.Seconds(), nodeAttrs)
	case sessiontree.EventNodeFailed:
		h.nodeFailures.Add(ctx, 1, nodeAttrs)
	case sessiontree.EventNodeAborted:
		h.nodeAborts.Add(ctx, 1, nodeAttrs)
	case sessiontree.EventChildSkipped:
		h.childSkips.Add(ctx, 1, nodeAttrs)
	case sessiontree.EventRunFinished:
		h.runDuration.Record(ctx, e.Elapsed.Seconds(), metric.WithAttributes(
			attribute.String("run_id", e.RunID),
		))
	}
}
