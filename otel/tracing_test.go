package otel_test

import (
	"context"
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/session-labs/sessiontree"
	streeotel "github.com/session-labs/sessiontree/otel"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func event(kind sessiontree.EventKind, runID, node string) sessiontree.Event {
	e := sessiontree.NewEvent(kind)
	e.RunID = runID
	e.Node = node
	return e
}

func TestTracingHandler_RunStartedCreatesRootSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event(sessiontree.EventRunStarted, "run-1", "session"))

	sc := h.ActiveRunSpanContext("run-1")
	if !sc.IsValid() {
		t.Fatal("expected valid run span context after run_started")
	}

	fin := event(sessiontree.EventRunFinished, "run-1", "session")
	fin.Elapsed = 100 * time.Millisecond
	fin.Payload["status"] = "completed"
	h.Handle(fin)

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}

	runSpan := spans[0]
	if runSpan.Name != "run:session" {
		t.Errorf("span name = %q, want %q", runSpan.Name, "run:session")
	}

	found := false
	for _, attr := range runSpan.Attributes {
		if string(attr.Key) == "sessiontree.run_id" && attr.Value.AsString() == "run-1" {
			found = true
		}
	}
	if !found {
		t.Error("expected sessiontree.run_id attribute on run span")
	}
	if runSpan.Status.Code != otelcodes.Ok {
		t.Errorf("status = %v, want Ok", runSpan.Status.Code)
	}
}

func TestTracingHandler_NodeSpansNestUnderRun(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event(sessiontree.EventRunStarted, "run-1", "session"))
	h.Handle(event(sessiontree.EventNodeStarted, "run-1", "block"))

	nodeSC := h.ActiveSpanContext("run-1", "block")
	if !nodeSC.IsValid() {
		t.Fatal("expected valid node span context")
	}
	runSC := h.ActiveRunSpanContext("run-1")
	if nodeSC.TraceID() != runSC.TraceID() {
		t.Error("node span should share the run span's trace")
	}

	h.Handle(event(sessiontree.EventNodeFinished, "run-1", "block"))
	fin := event(sessiontree.EventRunFinished, "run-1", "session")
	fin.Payload["status"] = "completed"
	h.Handle(fin)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	// Spans export in end order: node first, then run.
	if spans[0].Name != "node:block" {
		t.Errorf("first ended span = %q, want node:block", spans[0].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("node span's parent should be the run span")
	}
}

func TestTracingHandler_NodeFailedSetsErrorStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event(sessiontree.EventRunStarted, "run-1", "session"))
	h.Handle(event(sessiontree.EventNodeStarted, "run-1", "trial"))

	failed := event(sessiontree.EventNodeFailed, "run-1", "trial")
	failed.Payload["error"] = "stimulus crashed"
	h.Handle(failed)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "stimulus crashed" {
		t.Errorf("status description = %q, want %q", spans[0].Status.Description, "stimulus crashed")
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected a recorded error event on the span")
	}
}

func TestTracingHandler_CheckpointActivityBecomesSpanEvents(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event(sessiontree.EventRunStarted, "run-1", "session"))
	h.Handle(event(sessiontree.EventNodeStarted, "run-1", "block"))

	pause := event(sessiontree.EventPauseStarted, "run-1", "block")
	pause.Iteration = 3
	h.Handle(pause)
	h.Handle(event(sessiontree.EventPauseEnded, "run-1", "block"))
	h.Handle(event(sessiontree.EventRecalibrated, "run-1", "block"))

	h.Handle(event(sessiontree.EventNodeFinished, "run-1", "block"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	kinds := make(map[string]bool)
	for _, ev := range spans[0].Events {
		kinds[ev.Name] = true
	}
	for _, want := range []string{"pause_started", "pause_ended", "recalibrated"} {
		if !kinds[want] {
			t.Errorf("span missing %q event; got %v", want, kinds)
		}
	}
}

func TestTracingHandler_SkippedChildAttachesToRunSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event(sessiontree.EventRunStarted, "run-1", "session"))
	// A skipped child never opened a node span.
	h.Handle(event(sessiontree.EventChildSkipped, "run-1", "trial-b"))

	fin := event(sessiontree.EventRunFinished, "run-1", "session")
	fin.Payload["status"] = "completed"
	h.Handle(fin)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if len(spans[0].Events) != 1 || spans[0].Events[0].Name != "child_skipped" {
		t.Errorf("run span events = %v, want one child_skipped", spans[0].Events)
	}
}

func TestTracingHandler_FailedRunSetsErrorStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event(sessiontree.EventRunStarted, "run-1", "session"))

	fin := event(sessiontree.EventRunFinished, "run-1", "session")
	fin.Payload["status"] = "failed"
	fin.Payload["error"] = "node trial: boom"
	h.Handle(fin)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}

func TestTracingHandler_TracesLiveRun(t *testing.T) {
	exporter, tp := newTestTracer()
	h := streeotel.NewTracingHandler(tp.Tracer("test"))

	root := sessiontree.NewTreeNode("session").WithEventHandler(h.Handle)
	block := sessiontree.NewTreeNode("block").WithIterations(2)
	_ = block.Add(sessiontree.NewFuncRunnable("trial", func(ctx context.Context) error { return nil }))
	_ = root.Add(block)

	if err := root.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := exporter.GetSpans()
	// One span per composite node plus the run span.
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
}
