package sessiontree

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCallList_RunForwardAndReverse(t *testing.T) {
	var order []string
	l := NewCallList().
		Append("open-display", func() error { order = append(order, "a"); return nil }).
		Append("connect-tracker", func() error { order = append(order, "b"); return nil }).
		Append("load-stimuli", func() error { order = append(order, "c"); return nil })

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.Join(order, ""); got != "abc" {
		t.Errorf("forward order = %q, want %q", got, "abc")
	}

	order = nil
	if err := l.RunReverse(); err != nil {
		t.Fatalf("RunReverse() error = %v", err)
	}
	if got := strings.Join(order, ""); got != "cba" {
		t.Errorf("reverse order = %q, want %q", got, "cba")
	}
}

func TestCallList_StopsAtFirstFailure(t *testing.T) {
	bad := errors.New("device missing")
	ran := 0
	l := NewCallList().
		Append("first", func() error { ran++; return nil }).
		Append("second", func() error { return bad }).
		Append("third", func() error { ran++; return nil })

	err := l.Run()
	if !errors.Is(err, bad) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, bad)
	}
	if !strings.Contains(err.Error(), "second") {
		t.Errorf("error %q should name the failing call", err)
	}
	if ran != 1 {
		t.Errorf("%d calls ran besides the failure, want 1", ran)
	}
}

func TestCallList_NilFunctionIgnored(t *testing.T) {
	l := NewCallList().Append("nothing", nil)
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestNewSessionNode_SetupRunsForwardTeardownReverse(t *testing.T) {
	var order []string
	setup := NewCallList().
		Append("display", func() error { order = append(order, "display"); return nil }).
		Append("tracker", func() error { order = append(order, "tracker"); return nil })

	session := NewSessionNode("session", setup)
	_ = session.Add(NewFuncRunnable("trial", func(ctx context.Context) error {
		order = append(order, "trial")
		return nil
	}))

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"display", "tracker", "trial", "tracker", "display"}
	if !equalMarks(order, want) {
		t.Errorf("invocation order = %v, want %v", order, want)
	}
}

func TestNewSessionNode_NilSetup(t *testing.T) {
	session := NewSessionNode("session", nil)
	if err := session.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}
