package sessiontree

import (
	"errors"
	"testing"
)

func TestMultiEventHandler_FansOut(t *testing.T) {
	var a, b int
	h := MultiEventHandler(
		func(Event) { a++ },
		nil,
		func(Event) { b++ },
	)
	h(NewEvent(EventNodeStarted))
	if a != 1 || b != 1 {
		t.Errorf("handler counts = (%d, %d), want (1, 1)", a, b)
	}
}

func TestChannelEventHandler_DropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	h := ChannelEventHandler(ch)

	h(NewEvent(EventNodeStarted))
	h(NewEvent(EventNodeFinished)) // buffer full, dropped

	if got := len(ch); got != 1 {
		t.Fatalf("channel holds %d events, want 1", got)
	}
	e := <-ch
	if e.Kind != EventNodeStarted {
		t.Errorf("delivered kind = %s, want %s", e.Kind, EventNodeStarted)
	}
}

func TestEvent_WithPayloadInitializesMap(t *testing.T) {
	e := Event{Kind: EventNodeStarted}
	e = e.WithPayload("key", "value")
	if e.Payload["key"] != "value" {
		t.Errorf("Payload[key] = %v, want value", e.Payload["key"])
	}
}

func TestRunError_Rendering(t *testing.T) {
	primary := errors.New("stimulus failed")
	cleanup := errors.New("display stuck")

	e := &RunError{Node: "trial", Err: primary}
	if got, want := e.Error(), "node trial: stimulus failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	e.CleanupErr = cleanup
	want := "node trial: stimulus failed (cleanup also failed: display stuck)"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(e, primary) {
		t.Error("Unwrap should expose the primary error")
	}
	if errors.Is(e, cleanup) {
		t.Error("Unwrap must not expose the cleanup error")
	}
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"", OrderSequential, false},
		{"sequential", OrderSequential, false},
		{"random", OrderRandom, false},
		{"shuffled", OrderSequential, true},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOrder(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
