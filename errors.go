package sessiontree

import (
	"errors"
	"fmt"
)

// Engine errors
var (
	// ErrRunCanceled reports that the context was canceled while a run
	// was waiting at a checkpoint.
	ErrRunCanceled = errors.New("run was canceled")

	// ErrNilChild is returned when a nil Runnable is added to a node.
	ErrNilChild = errors.New("cannot add nil child")
)

// RunError is the failure surfaced by Run. It identifies the node that
// failed, the primary cause, and optionally a secondary cleanup failure
// raised by Finish while recovering. The primary error always wins:
// Unwrap returns Err, never CleanupErr.
type RunError struct {
	// Node is the name of the node whose Run failed.
	Node string

	// Err is the primary failure (setup or execution).
	Err error

	// CleanupErr is set when Finish also failed during best-effort
	// cleanup after Err. It is diagnostic only and never masks Err.
	CleanupErr error
}

// Error renders the failing node's name and the underlying cause,
// appending the cleanup failure when one occurred.
func (e *RunError) Error() string {
	if e.CleanupErr != nil {
		return fmt.Sprintf("node %s: %v (cleanup also failed: %v)", e.Node, e.Err, e.CleanupErr)
	}
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

// Unwrap returns the primary error.
func (e *RunError) Unwrap() error {
	return e.Err
}
