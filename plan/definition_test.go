package plan

import (
	"context"
	"strings"
	"testing"

	"github.com/session-labs/sessiontree"
)

func intp(n int) *int { return &n }

func validDefinition() Definition {
	return Definition{
		ID:      "calibration-session",
		Version: "1",
		Root: NodeDef{
			ID:         "session",
			Iterations: intp(1),
			Children: []NodeDef{
				{ID: "fixation"},
				{
					ID:         "block",
					Iterations: intp(3),
					Order:      "random",
					Children: []NodeDef{
						{ID: "trial-a"},
						{ID: "trial-b"},
					},
				},
			},
		},
	}
}

func hasCode(diags []Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestDefinition_ValidateCleanPlan(t *testing.T) {
	d := validDefinition()
	diags := d.Validate()
	if HasErrors(diags) {
		t.Errorf("valid plan produced errors: %v", Errors(diags))
	}
}

func TestDefinition_ValidateEmptyIDs(t *testing.T) {
	d := validDefinition()
	d.ID = ""
	d.Root.Children[0].ID = ""

	diags := d.Validate()
	if !hasCode(diags, "PL-001") {
		t.Errorf("expected PL-001 for empty IDs, got %v", diags)
	}
	if !HasErrors(diags) {
		t.Error("empty IDs should be errors")
	}
}

func TestDefinition_ValidateDuplicateIDs(t *testing.T) {
	d := validDefinition()
	d.Root.Children[0].ID = "trial-a"

	diags := d.Validate()
	if !hasCode(diags, "PL-002") {
		t.Errorf("expected PL-002 for duplicate ID, got %v", diags)
	}
}

func TestDefinition_ValidateUnknownOrder(t *testing.T) {
	d := validDefinition()
	d.Root.Order = "shuffled"

	diags := d.Validate()
	if !hasCode(diags, "PL-003") {
		t.Errorf("expected PL-003 for unknown order, got %v", diags)
	}
}

func TestDefinition_ValidateLeafWithChildren(t *testing.T) {
	d := validDefinition()
	d.Root.Children[1].Kind = "leaf"

	diags := d.Validate()
	if !hasCode(diags, "PL-005") {
		t.Errorf("expected PL-005 for leaf with children, got %v", diags)
	}
}

func TestDefinition_ValidateWarnings(t *testing.T) {
	d := validDefinition()
	d.Root.Children[1].Iterations = intp(0)
	d.Root.Children = append(d.Root.Children, NodeDef{ID: "empty", Kind: "group"})

	diags := d.Validate()
	if HasErrors(diags) {
		t.Fatalf("warnings misclassified as errors: %v", Errors(diags))
	}
	if !hasCode(diags, "PL-006") {
		t.Errorf("expected PL-006 for disabled iterations, got %v", diags)
	}
	if !hasCode(diags, "PL-007") {
		t.Errorf("expected PL-007 for empty group, got %v", diags)
	}
	if got := len(Warnings(diags)); got != 2 {
		t.Errorf("got %d warnings, want 2", got)
	}
}

func TestDefinition_ToTreeBuildsExecutableTree(t *testing.T) {
	d := validDefinition()

	var built []string
	root, err := d.ToTree(WithLeafFactory(func(nd NodeDef) (sessiontree.Runnable, error) {
		built = append(built, nd.ID)
		return sessiontree.NewFuncRunnable(nd.ID, func(ctx context.Context) error { return nil }), nil
	}))
	if err != nil {
		t.Fatalf("ToTree() error = %v", err)
	}

	if root.Name() != "session" {
		t.Errorf("root name = %q, want %q", root.Name(), "session")
	}
	if got := len(root.Children()); got != 2 {
		t.Fatalf("root has %d children, want 2", got)
	}

	block, ok := root.Children()[1].(*sessiontree.TreeNode)
	if !ok {
		t.Fatalf("second child is %T, want *sessiontree.TreeNode", root.Children()[1])
	}
	if block.Iterations() != 3 {
		t.Errorf("block iterations = %d, want 3", block.Iterations())
	}
	if block.Order() != sessiontree.OrderRandom {
		t.Errorf("block order = %v, want random", block.Order())
	}

	wantLeaves := []string{"fixation", "trial-a", "trial-b"}
	if len(built) != len(wantLeaves) {
		t.Fatalf("factory built %v, want %v", built, wantLeaves)
	}
	for i, id := range wantLeaves {
		if built[i] != id {
			t.Errorf("factory call %d = %q, want %q", i, built[i], id)
		}
	}

	if err := root.Run(context.Background()); err != nil {
		t.Errorf("built tree failed to run: %v", err)
	}
}

func TestDefinition_ToTreeRequiresLeafFactory(t *testing.T) {
	d := validDefinition()
	_, err := d.ToTree()
	if err == nil {
		t.Fatal("ToTree() without a leaf factory should fail")
	}
	if !strings.Contains(err.Error(), "WithLeafFactory") {
		t.Errorf("error %q should point at WithLeafFactory", err)
	}
}

func TestDefinition_ToTreeRejectsLeafRoot(t *testing.T) {
	d := Definition{ID: "p", Root: NodeDef{ID: "solo"}}
	_, err := d.ToTree(WithLeafFactory(func(nd NodeDef) (sessiontree.Runnable, error) {
		return sessiontree.NewFuncRunnable(nd.ID, nil), nil
	}))
	if err == nil {
		t.Error("ToTree() with a leaf root should fail")
	}
}
