// Package sessiontree organizes a long-running procedure as a tree of
// executable nodes and drives it top-down-then-bottom-up: each node runs
// a start action, recursively runs its children some number of times in
// a chosen order, then runs a finish action.
//
// The engine is a single-threaded, depth-first tree walker with
// cooperative interruption points. External controllers steer a running
// tree through per-node flow signals (abort, pause, skip, recalibrate)
// consumed at checkpoints between discrete units of work; a running
// node reaches its nearest ancestor's checkpoint logic through a
// transient caller back-reference that exists only for the duration of
// one nested Run call.
//
// Rendering, hardware I/O, monitoring GUIs, and data logging are
// external collaborators: the core touches them only through the
// Monitor, Calibrator, Action, and EventHandler contracts.
package sessiontree

import "context"

// Run is a convenience entry point: it attaches the given handlers to
// the root (combined when more than one) and executes it. All other
// configuration (iteration counts, ordering, children, action hooks)
// must be established before this call.
func Run(ctx context.Context, root *TreeNode, handlers ...EventHandler) error {
	switch len(handlers) {
	case 0:
	case 1:
		root.WithEventHandler(handlers[0])
	default:
		root.WithEventHandler(MultiEventHandler(handlers...))
	}
	return root.Run(ctx)
}
