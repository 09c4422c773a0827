// Package otel provides OpenTelemetry integration for session tree
// engine events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/session-labs/sessiontree"
)

// TracingHandler translates engine events into OpenTelemetry spans.
// It maintains maps of active run and node spans, creating and ending
// them based on event kind. Checkpoint activity (pauses, aborts, skips,
// recalibrations) is recorded as span events on the owning span.
type TracingHandler struct {
	tracer trace.Tracer

	mu        sync.RWMutex
	runSpans  map[string]trace.Span      // runID -> span
	runCtxs   map[string]context.Context // runID -> context (for child spans)
	nodeSpans map[string]trace.Span      // runID:node -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given
// tracer to create spans from engine events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:    tracer,
		runSpans:  make(map[string]trace.Span),
		runCtxs:   make(map[string]context.Context),
		nodeSpans: make(map[string]trace.Span),
	}
}

// Handle processes an engine event and creates or ends spans accordingly.
// Pass it to a node as its event handler.
func (h *TracingHandler) Handle(e sessiontree.Event) {
	switch e.Kind {
	case sessiontree.EventRunStarted:
		h.handleRunStarted(e)
	case sessiontree.EventNodeStarted:
		h.handleNodeStarted(e)
	case sessiontree.EventNodeFinished:
		h.handleNodeFinished(e)
	case sessiontree.EventNodeFailed:
		h.handleNodeFailed(e)
	case sessiontree.EventNodeAborted,
		sessiontree.EventChildSkipped,
		sessiontree.EventPauseStarted,
		sessiontree.EventPauseEnded,
		sessiontree.EventRecalibrated:
		h.handleCheckpointEvent(e)
	case sessiontree.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// handleRunStarted creates a root span for the run.
func (h *TracingHandler) handleRunStarted(e sessiontree.Event) {
	spanName := "run:" + e.RunID
	if e.Node != "" {
		spanName = "run:" + e.Node
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("sessiontree.run_id", e.RunID),
		),
		trace.WithTimestamp(e.Time),
	)

	if e.Node != "" {
		span.SetAttributes(attribute.String("sessiontree.root", e.Node))
	}

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

// handleNodeStarted creates a child span under the run span.
func (h *TracingHandler) handleNodeStarted(e sessiontree.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()

	if !ok {
		// No parent run span; start from background context.
		parentCtx = context.Background()
	}

	spanName := "node:" + e.Node

	_, span := h.tracer.Start(parentCtx, spanName,
		trace.WithAttributes(
			attribute.String("sessiontree.run_id", e.RunID),
			attribute.String("sessiontree.node", e.Node),
		),
		trace.WithTimestamp(e.Time),
	)

	key := e.RunID + ":" + e.Node
	h.mu.Lock()
	h.nodeSpans[key] = span
	h.mu.Unlock()
}

// handleNodeFinished ends the node span with success status.
func (h *TracingHandler) handleNodeFinished(e sessiontree.Event) {
	key := e.RunID + ":" + e.Node

	h.mu.Lock()
	span, ok := h.nodeSpans[key]
	if ok {
		delete(h.nodeSpans, key)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.Int("sessiontree.iterations", e.Iteration),
			attribute.String("sessiontree.duration", e.Elapsed.String()),
		)
		span.SetStatus(codes.Ok, "")
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleNodeFailed ends the node span with error status.
func (h *TracingHandler) handleNodeFailed(e sessiontree.Event) {
	key := e.RunID + ":" + e.Node

	h.mu.Lock()
	span, ok := h.nodeSpans[key]
	if ok {
		delete(h.nodeSpans, key)
	}
	h.mu.Unlock()

	if ok {
		errMsg := "unknown error"
		if msg, found := e.Payload["error"]; found {
			if s, ok := msg.(string); ok {
				errMsg = s
			}
		}
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(
			spanError(errMsg),
			trace.WithTimestamp(e.Time),
		)
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleCheckpointEvent adds a span event for checkpoint activity. The
// event attaches to the emitting node's span when one is open, falling
// back to the run span (skipped children never opened a span of their
// own).
func (h *TracingHandler) handleCheckpointEvent(e sessiontree.Event) {
	key := e.RunID + ":" + e.Node

	h.mu.RLock()
	span, ok := h.nodeSpans[key]
	if !ok {
		span, ok = h.runSpans[e.RunID]
	}
	h.mu.RUnlock()

	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sessiontree.node", e.Node),
		attribute.Int("sessiontree.iteration", e.Iteration),
	}
	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

// handleRunFinished ends the root run span.
func (h *TracingHandler) handleRunFinished(e sessiontree.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()

	if ok {
		status := ""
		if s, found := e.Payload["status"]; found {
			if str, ok := s.(string); ok {
				status = str
			}
		}

		span.SetAttributes(
			attribute.String("sessiontree.duration", e.Elapsed.String()),
			attribute.String("sessiontree.status", status),
		)

		if status == "failed" {
			errMsg := "run failed"
			if msg, found := e.Payload["error"]; found {
				if s, ok := msg.(string); ok {
					errMsg = s
				}
			}
			span.SetStatus(codes.Error, errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		span.End(trace.WithTimestamp(e.Time))
	}
}

// ActiveSpanContext returns the SpanContext for the active node span
// identified by runID and node name. Returns an empty SpanContext if not
// found.
func (h *TracingHandler) ActiveSpanContext(runID, node string) trace.SpanContext {
	key := runID + ":" + node

	h.mu.RLock()
	span, ok := h.nodeSpans[key]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext for the active run span
// identified by runID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// spanError is a simple error type for recording span errors.
type spanError string

func (e spanError) Error() string { return string(e) }
