package sessiontree

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Order selects how a TreeNode traverses its children within one
// iteration.
type Order int

const (
	// OrderSequential visits children in insertion order.
	OrderSequential Order = iota

	// OrderRandom draws a fresh uniform permutation of the children
	// every iteration.
	OrderRandom
)

// String returns the string representation of the Order.
func (o Order) String() string {
	switch o {
	case OrderRandom:
		return "random"
	default:
		return "sequential"
	}
}

// ParseOrder converts a string to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "sequential":
		return OrderSequential, nil
	case "random":
		return OrderRandom, nil
	default:
		return OrderSequential, fmt.Errorf("unknown order %q", s)
	}
}

// PauseInterval is the sleep between re-checks while a checkpoint blocks
// on a pause request.
const PauseInterval = 50 * time.Millisecond

// TreeNode is a Runnable composite that owns an ordered collection of
// child Runnables and adds iteration control: a repeat count, a traversal
// order policy, and the recursive run protocol that interleaves the
// start/finish actions with child execution and flow-signal checkpoints.
//
// Execution is strictly single-threaded and depth-first. Cancellation is
// cooperative: external controllers set flags on Signals() and the node
// consumes them at checkpoints between discrete units of work.
type TreeNode struct {
	Base

	children       []Runnable
	iterations     int
	iterationCount int
	order          Order
	payload        any

	signals FlowSignals
	monitor Monitor
	events  EventHandler
	rng     *rand.Rand

	runID    string
	runStart time.Time
}

// NewTreeNode creates a node with no children, a single iteration, and
// sequential traversal.
func NewTreeNode(name string) *TreeNode {
	return &TreeNode{
		Base:       NewBase(name),
		children:   make([]Runnable, 0),
		iterations: 1,
		order:      OrderSequential,
	}
}

// WithIterations sets the repeat count and returns the node for
// chaining. Zero or negative disables the node: Run returns immediately
// without invoking start, finish, or any child.
func (n *TreeNode) WithIterations(iterations int) *TreeNode {
	n.iterations = iterations
	return n
}

// WithOrder sets the child traversal policy and returns the node.
func (n *TreeNode) WithOrder(order Order) *TreeNode {
	n.order = order
	return n
}

// WithPayload attaches an opaque caller-supplied value and returns the
// node. The engine never inspects it.
func (n *TreeNode) WithPayload(payload any) *TreeNode {
	n.payload = payload
	return n
}

// WithMonitor attaches an optional display collaborator, refreshed
// non-blockingly at each checkpoint.
func (n *TreeNode) WithMonitor(m Monitor) *TreeNode {
	n.monitor = m
	return n
}

// WithEventHandler attaches an event handler. Events from descendants
// bubble up the caller chain to the nearest node with a handler; set one
// on the root to observe the whole run.
func (n *TreeNode) WithEventHandler(h EventHandler) *TreeNode {
	n.events = h
	return n
}

// WithRand sets the randomness source used for random traversal orders.
// If unset, the shared math/rand source is used.
func (n *TreeNode) WithRand(rng *rand.Rand) *TreeNode {
	n.rng = rng
	return n
}

// WithStartAction attaches the start hook and returns the node.
func (n *TreeNode) WithStartAction(a Action) *TreeNode {
	n.SetStartAction(a)
	return n
}

// WithFinishAction attaches the finish hook and returns the node.
func (n *TreeNode) WithFinishAction(a Action) *TreeNode {
	n.SetFinishAction(a)
	return n
}

// Add appends children in order. Insertion order is the canonical
// sequential traversal order. Attaching children while the node itself
// is mid-run is undefined; the traversal order is snapshotted at the
// start of each iteration.
func (n *TreeNode) Add(children ...Runnable) error {
	for _, c := range children {
		if c == nil {
			return ErrNilChild
		}
		n.children = append(n.children, c)
	}
	return nil
}

// Children returns a copy of the ordered child list.
func (n *TreeNode) Children() []Runnable {
	out := make([]Runnable, len(n.children))
	copy(out, n.children)
	return out
}

// Iterations returns the configured repeat count.
func (n *TreeNode) Iterations() int {
	return n.iterations
}

// IterationCount returns the 1-based index of the iteration currently
// (or last) executing. It is 0 before the first iteration of a run.
func (n *TreeNode) IterationCount() int {
	return n.iterationCount
}

// Order returns the configured traversal policy.
func (n *TreeNode) Order() Order {
	return n.order
}

// Payload returns the opaque caller-supplied value, if any.
func (n *TreeNode) Payload() any {
	return n.payload
}

// Signals returns the node's flow signal set. External controllers use
// it to request abort, pause, skip, or recalibration.
func (n *TreeNode) Signals() *FlowSignals {
	return &n.signals
}

// RunID returns the identifier of the current or last root run started
// on this node. Empty if this node never ran as a root.
func (n *TreeNode) RunID() string {
	return n.runID
}

// Abort stops the node and every descendant. It sets the running flag
// false through the whole subtree and performs no cleanup; Finish still
// runs when the owning Run call unwinds.
func (n *TreeNode) Abort() {
	n.Base.Abort()
	for _, c := range n.children {
		c.Abort()
	}
}

// Run executes the node's protocol: start action, then the configured
// number of iterations over the children in the configured order, then
// the finish action.
//
// Failure policy: a start error propagates immediately and Finish is not
// attempted. An error inside the iteration loop is reported, Finish runs
// as best-effort cleanup, and the original error propagates; a secondary
// Finish failure is attached as diagnostics but never masks the
// original. On the normal path Finish runs exactly once, including when
// an abort ended the loop early.
func (n *TreeNode) Run(ctx context.Context) error {
	if n.iterations <= 0 {
		return nil
	}

	isRoot := n.Caller() == nil
	if isRoot {
		n.runID = uuid.NewString()
		n.runStart = time.Now()
		n.emit(NewEvent(EventRunStarted).WithNode(n.Name()).
			WithPayload("iterations", n.iterations).
			WithPayload("order", n.order.String()))
	}

	if err := n.Start(); err != nil {
		rerr := &RunError{Node: n.Name(), Err: err}
		if isRoot {
			n.emitRunFinished(rerr)
		}
		return rerr
	}
	n.emit(NewEvent(EventNodeStarted).WithNode(n.Name()))

	n.iterationCount = 0
	if runErr := n.runIterations(ctx); runErr != nil {
		n.emit(NewEvent(EventNodeFailed).WithNode(n.Name()).
			WithIteration(n.iterationCount).
			WithPayload("error", runErr.Error()))

		if ferr := n.Finish(); ferr != nil {
			n.emit(NewEvent(EventCleanupFailed).WithNode(n.Name()).
				WithPayload("error", ferr.Error()))
			runErr = &RunError{Node: n.Name(), Err: runErr, CleanupErr: ferr}
		} else if _, ok := runErr.(*RunError); !ok {
			runErr = &RunError{Node: n.Name(), Err: runErr}
		}

		if isRoot {
			n.emitRunFinished(runErr)
		}
		return runErr
	}

	if err := n.Finish(); err != nil {
		rerr := &RunError{Node: n.Name(), Err: err}
		if isRoot {
			n.emitRunFinished(rerr)
		}
		return rerr
	}
	n.emit(NewEvent(EventNodeFinished).WithNode(n.Name()).
		WithIteration(n.iterationCount))

	if isRoot {
		n.emitRunFinished(nil)
	}
	return nil
}

// runIterations drives the bounded iteration loop. It returns nil on
// normal completion and on cooperative abort; only real failures (child
// errors, calibration errors, context cancellation) are returned.
func (n *TreeNode) runIterations(ctx context.Context) error {
	for n.iterationCount < n.iterations && n.Running() {
		n.iterationCount++
		n.emit(NewEvent(EventIterationStarted).WithNode(n.Name()).
			WithIteration(n.iterationCount))

		order := n.traversalOrder()
		for _, idx := range order {
			if !n.Running() {
				break
			}
			child := n.children[idx]

			intr, err := n.Checkpoint(ctx, child)
			if err != nil {
				return err
			}
			switch intr {
			case InterruptAbort:
				n.emit(NewEvent(EventNodeAborted).WithNode(n.Name()).
					WithIteration(n.iterationCount))
				return nil
			case InterruptSkip:
				n.emit(NewEvent(EventChildSkipped).WithNode(child.Name()).
					WithIteration(n.iterationCount))
				continue
			}

			child.SetCaller(n)
			err = child.Run(ctx)
			child.SetCaller(nil)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Checkpoint evaluates the node's flow signals, in fixed order: monitor
// refresh, pause busy-wait, one-shot recalibration, abort, skip. It is
// called by the engine before every child and may be called by any
// descendant through its Caller() at whatever granularity the leaf
// chooses. The child argument names the unit a skip request applies to;
// it may be nil.
//
// An abort request aborts this node's whole subtree and reports
// InterruptAbort. A skip request aborts only the named child and reports
// InterruptSkip. Pause blocks cooperatively until cleared, with abort
// winning even while paused.
func (n *TreeNode) Checkpoint(ctx context.Context, child Runnable) (Interruption, error) {
	if n.monitor != nil {
		n.monitor.Refresh()
	}

	paused := false
	for {
		if err := ctx.Err(); err != nil {
			return InterruptNone, fmt.Errorf("%w: %v", ErrRunCanceled, err)
		}
		pause, abort := n.signals.pauseState()
		if abort || !pause {
			break
		}
		if !paused {
			paused = true
			n.emit(NewEvent(EventPauseStarted).WithNode(n.Name()).
				WithIteration(n.iterationCount))
		}
		time.Sleep(PauseInterval)
	}
	if paused {
		n.emit(NewEvent(EventPauseEnded).WithNode(n.Name()).
			WithIteration(n.iterationCount))
	}

	if cal := n.signals.takeCalibrator(); cal != nil {
		n.emit(NewEvent(EventRecalibrated).WithNode(n.Name()).
			WithIteration(n.iterationCount))
		if err := cal.Calibrate(); err != nil {
			return InterruptNone, fmt.Errorf("calibration: %w", err)
		}
	}

	if n.signals.takeAbort() {
		n.Abort()
		return InterruptAbort, nil
	}

	if n.signals.takeSkip() {
		if child != nil {
			child.Abort()
		}
		return InterruptSkip, nil
	}

	return InterruptNone, nil
}

// traversalOrder snapshots the child visit order for one iteration.
func (n *TreeNode) traversalOrder() []int {
	count := len(n.children)
	if n.order == OrderRandom {
		if n.rng != nil {
			return n.rng.Perm(count)
		}
		return rand.Perm(count)
	}
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	return order
}

// emit delivers an event to this node's handler, or bubbles it up the
// caller chain to the nearest ancestor with one. The root stamps the run
// ID and elapsed time.
func (n *TreeNode) emit(e Event) {
	if n.events != nil {
		if e.RunID == "" {
			e.RunID = n.runID
		}
		if e.Elapsed == 0 && !n.runStart.IsZero() {
			e.Elapsed = time.Since(n.runStart)
		}
		n.events(e)
		return
	}
	if c := n.Caller(); c != nil {
		c.emit(e)
	}
}

// emitRunFinished reports the outcome of a root run.
func (n *TreeNode) emitRunFinished(err error) {
	e := NewEvent(EventRunFinished).WithNode(n.Name())
	if err != nil {
		e = e.WithPayload("status", "failed").
			WithPayload("error", err.Error())
	} else {
		e = e.WithPayload("status", "completed")
	}
	n.emit(e)
}

// Ensure interface compliance at compile time.
var _ Runnable = (*TreeNode)(nil)
