package bus

import (
	"testing"
	"time"

	"github.com/session-labs/sessiontree"
)

func TestMemBus_RunScopedDelivery(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	defer b.Close()

	subA := b.Subscribe("run-a")
	subB := b.Subscribe("run-b")

	b.Publish(makeEvent("run-a", sessiontree.EventRunStarted, "root"))

	select {
	case e := <-subA.Events():
		if e.RunID != "run-a" {
			t.Errorf("RunID = %q, want run-a", e.RunID)
		}
	case <-time.After(time.Second):
		t.Fatal("run-a subscriber received nothing")
	}

	select {
	case e := <-subB.Events():
		t.Errorf("run-b subscriber received foreign event %v", e)
	default:
	}
}

func TestMemBus_GlobalSubscriberSeesAllRuns(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	defer b.Close()

	all := b.SubscribeAll()
	b.Publish(makeEvent("run-a", sessiontree.EventRunStarted, "root"))
	b.Publish(makeEvent("run-b", sessiontree.EventRunStarted, "root"))

	got := 0
	for got < 2 {
		select {
		case <-all.Events():
			got++
		case <-time.After(time.Second):
			t.Fatalf("global subscriber got %d events, want 2", got)
		}
	}
}

func TestMemBus_CloseEndsSubscriptions(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	sub := b.SubscribeAll()

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("subscription channel should be closed after bus Close")
	}

	// Publishing after close is a silent no-op.
	b.Publish(makeEvent("run-a", sessiontree.EventRunStarted, "root"))
}

func TestMemBus_SubscriptionCloseIsIdempotent(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	defer b.Close()

	sub := b.Subscribe("run-a")
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMemBus_FullBufferDropsNotBlocks(t *testing.T) {
	b := NewMemBus(MemBusConfig{SubscriberBufferSize: 1})
	defer b.Close()

	sub := b.Subscribe("run-a")
	b.Publish(makeEvent("run-a", sessiontree.EventNodeStarted, "n1"))
	b.Publish(makeEvent("run-a", sessiontree.EventNodeStarted, "n2")) // dropped

	e := <-sub.Events()
	if e.Node != "n1" {
		t.Errorf("delivered node = %q, want n1", e.Node)
	}
	select {
	case e := <-sub.Events():
		t.Errorf("unexpected second delivery: %v", e)
	default:
	}
}
