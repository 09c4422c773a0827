package sessiontree

import "fmt"

// Action is an external hook invoked at a well-defined lifecycle point.
// Actions take no arguments; whatever they need is captured at
// registration time. The engine never introspects them further.
type Action func() error

// Call is a named entry in a CallList.
type Call struct {
	Name string
	Fn   Action
}

// CallList is an ordered list of named calls. It is the typical
// implementation of a node's start and finish hooks: register setup
// calls once, run them forward on start and in reverse on finish so
// teardown mirrors setup.
type CallList struct {
	calls []Call
}

// NewCallList creates an empty call list.
func NewCallList() *CallList {
	return &CallList{calls: make([]Call, 0)}
}

// Append registers a call and returns the list for chaining.
// Nil functions are ignored.
func (l *CallList) Append(name string, fn Action) *CallList {
	if fn == nil {
		return l
	}
	l.calls = append(l.calls, Call{Name: name, Fn: fn})
	return l
}

// Len returns the number of registered calls.
func (l *CallList) Len() int {
	return len(l.calls)
}

// Calls returns a copy of the registered calls in order.
func (l *CallList) Calls() []Call {
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Run invokes the calls in registration order, stopping at the first
// failure.
func (l *CallList) Run() error {
	for _, c := range l.calls {
		if err := c.Fn(); err != nil {
			return fmt.Errorf("call %s: %w", c.Name, err)
		}
	}
	return nil
}

// RunReverse invokes the calls in reverse registration order, stopping
// at the first failure.
func (l *CallList) RunReverse() error {
	for i := len(l.calls) - 1; i >= 0; i-- {
		c := l.calls[i]
		if err := c.Fn(); err != nil {
			return fmt.Errorf("call %s: %w", c.Name, err)
		}
	}
	return nil
}

// NewSessionNode wires a top-level node with a setup call list: the list
// runs in registration order as the node's start action and in reverse
// order as its finish action. A nil setup yields a plain node.
func NewSessionNode(name string, setup *CallList) *TreeNode {
	n := NewTreeNode(name)
	if setup != nil {
		n.SetStartAction(setup.Run)
		n.SetFinishAction(setup.RunReverse)
	}
	return n
}
