package sessiontree

import (
	"context"
	"sync"
)

// Runnable is the minimal capability set every tree member exposes.
// The engine drives Runnables through a fixed protocol: Start is invoked
// at most once per Run, Finish at most once per Run (and exactly once if
// Start succeeded, even when child execution fails), and Abort may be
// called at any time to stop the current iteration loop cooperatively.
type Runnable interface {
	// Name returns the node's identity, used in errors and events.
	Name() string

	// Start prepares the node for execution and marks it running.
	Start() error

	// Run executes the node's unit of work. It returns only after the
	// work and any Finish it performs are complete.
	Run(ctx context.Context) error

	// Finish tears the node down and marks it stopped.
	Finish() error

	// Abort renders the node (and, for composites, every descendant)
	// unable to continue its current iteration loop. It performs no
	// cleanup; callers still invoke Finish for teardown.
	Abort()

	// Running reports whether the node is between Start and Finish of
	// an active Run.
	Running() bool

	// SetCaller sets the transient back-reference to the ancestor that
	// is about to invoke Run. The parent clears it immediately after
	// the nested Run returns; it is never persisted.
	SetCaller(caller *TreeNode)

	// Caller returns the current back-reference, or nil outside a Run.
	Caller() *TreeNode
}

// Base provides the common lifecycle state for Runnable implementations.
// Embed this in concrete node types to get naming, the running flag, the
// caller back-reference, and the start/finish action hooks for free.
type Base struct {
	name string

	mu           sync.Mutex
	running      bool
	caller       *TreeNode
	startAction  Action
	finishAction Action
}

// NewBase creates a Base with the given name.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the node's identity.
func (b *Base) Name() string {
	return b.name
}

// Running reports whether the node is between Start and Finish.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// SetRunning sets the running flag directly. The engine and external
// leaf implementations use this; most code goes through Start/Finish.
func (b *Base) SetRunning(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
}

// Abort marks the node as no longer running. It never returns an error
// and performs no further cleanup.
func (b *Base) Abort() {
	b.SetRunning(false)
}

// SetCaller sets the transient back-reference to the invoking ancestor.
func (b *Base) SetCaller(caller *TreeNode) {
	b.mu.Lock()
	b.caller = caller
	b.mu.Unlock()
}

// Caller returns the invoking ancestor, or nil outside a nested Run.
func (b *Base) Caller() *TreeNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caller
}

// SetStartAction attaches the hook invoked by Start.
func (b *Base) SetStartAction(a Action) {
	b.mu.Lock()
	b.startAction = a
	b.mu.Unlock()
}

// SetFinishAction attaches the hook invoked by Finish.
func (b *Base) SetFinishAction(a Action) {
	b.mu.Lock()
	b.finishAction = a
	b.mu.Unlock()
}

// Start marks the node running and invokes the start action, if any.
// If the action fails the node is left stopped and the error propagates;
// the caller must not attempt Finish in that case.
func (b *Base) Start() error {
	b.mu.Lock()
	b.running = true
	a := b.startAction
	b.mu.Unlock()

	if a != nil {
		if err := a(); err != nil {
			b.SetRunning(false)
			return err
		}
	}
	return nil
}

// Finish marks the node stopped and invokes the finish action, if any.
// The flag is cleared even when the action fails.
func (b *Base) Finish() error {
	b.mu.Lock()
	b.running = false
	a := b.finishAction
	b.mu.Unlock()

	if a != nil {
		return a()
	}
	return nil
}

// FuncRunnable wraps a function as a leaf Runnable.
// This is convenient for simple units of work and for testing. The
// wrapped function may poll an ancestor's Checkpoint through Caller()
// to honor cooperative interruption at its own granularity.
type FuncRunnable struct {
	Base
	fn func(ctx context.Context) error
}

// NewFuncRunnable creates a leaf that executes the given function.
func NewFuncRunnable(name string, fn func(ctx context.Context) error) *FuncRunnable {
	return &FuncRunnable{
		Base: NewBase(name),
		fn:   fn,
	}
}

// Run executes Start, the wrapped function, then Finish.
// The function error always wins over a secondary Finish error.
func (r *FuncRunnable) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return &RunError{Node: r.Name(), Err: err}
	}

	var runErr error
	if r.fn != nil && r.Running() {
		runErr = r.fn(ctx)
	}

	if runErr != nil {
		if ferr := r.Finish(); ferr != nil {
			return &RunError{Node: r.Name(), Err: runErr, CleanupErr: ferr}
		}
		return &RunError{Node: r.Name(), Err: runErr}
	}

	if err := r.Finish(); err != nil {
		return &RunError{Node: r.Name(), Err: err}
	}
	return nil
}

// Ensure interface compliance at compile time.
var _ Runnable = (*FuncRunnable)(nil)
