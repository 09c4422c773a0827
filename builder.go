package sessiontree

import (
	"context"
	"fmt"
)

// TreeBuilder provides a fluent API for constructing session trees.
// Errors are accumulated and reported once by Build.
//
// Example usage:
//
//	root, err := NewTreeBuilder("session").
//	    Iterations(2).
//	    Leaf("fixation", showFixation).
//	    Group("block", func(b *TreeBuilder) {
//	        b.Iterations(10).Random().
//	            Leaf("trial-a", runTrialA).
//	            Leaf("trial-b", runTrialB)
//	    }).
//	    Build()
type TreeBuilder struct {
	node *TreeNode
	errs []error
}

// NewTreeBuilder creates a builder rooted at a new node with the given
// name.
func NewTreeBuilder(name string) *TreeBuilder {
	return &TreeBuilder{
		node: NewTreeNode(name),
		errs: make([]error, 0),
	}
}

// Iterations sets the repeat count of the node under construction.
func (b *TreeBuilder) Iterations(n int) *TreeBuilder {
	b.node.WithIterations(n)
	return b
}

// Sequential selects insertion-order traversal for the node.
func (b *TreeBuilder) Sequential() *TreeBuilder {
	b.node.WithOrder(OrderSequential)
	return b
}

// Random selects freshly-randomized traversal for the node.
func (b *TreeBuilder) Random() *TreeBuilder {
	b.node.WithOrder(OrderRandom)
	return b
}

// Payload attaches an opaque value to the node.
func (b *TreeBuilder) Payload(v any) *TreeBuilder {
	b.node.WithPayload(v)
	return b
}

// OnStart attaches the node's start action.
func (b *TreeBuilder) OnStart(a Action) *TreeBuilder {
	b.node.SetStartAction(a)
	return b
}

// OnFinish attaches the node's finish action.
func (b *TreeBuilder) OnFinish(a Action) *TreeBuilder {
	b.node.SetFinishAction(a)
	return b
}

// Monitor attaches a display collaborator to the node.
func (b *TreeBuilder) Monitor(m Monitor) *TreeBuilder {
	b.node.WithMonitor(m)
	return b
}

// Child appends an already-constructed Runnable.
func (b *TreeBuilder) Child(r Runnable) *TreeBuilder {
	if err := b.node.Add(r); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Leaf appends a FuncRunnable wrapping the given function.
func (b *TreeBuilder) Leaf(name string, fn func(ctx context.Context) error) *TreeBuilder {
	return b.Child(NewFuncRunnable(name, fn))
}

// Group appends a nested composite node, configured by the callback on
// its own builder.
func (b *TreeBuilder) Group(name string, configure func(*TreeBuilder)) *TreeBuilder {
	child := NewTreeBuilder(name)
	if configure != nil {
		configure(child)
	}
	node, err := child.Build()
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("group %s: %w", name, err))
		return b
	}
	return b.Child(node)
}

// Build returns the constructed tree, or the first accumulated error.
func (b *TreeBuilder) Build() (*TreeNode, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("tree construction failed: %w", b.errs[0])
	}
	return b.node, nil
}
