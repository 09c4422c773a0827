package plan

import (
	"fmt"
	"math/rand"

	"github.com/session-labs/sessiontree"
)

// Diagnostic represents a validation error or warning produced by plan
// validation. Shared by the loader and the CLI validate command.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "PL-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
	Line     int    `json:"line,omitempty"` // source line number (0 if unavailable)
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

// Definition is the serializable representation of a session tree. The
// loader produces it from JSON or YAML and ToTree converts it into an
// executable tree.
type Definition struct {
	ID       string            `json:"id"`
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Root     NodeDef           `json:"root"`
}

// NodeDef is a serializable node within a Definition. A node with
// children is a group; a node without children is a leaf whose behavior
// is resolved by the leaf factory at build time.
type NodeDef struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind,omitempty"` // "group" or "leaf"; inferred from children when empty
	Iterations *int           `json:"iterations,omitempty"`
	Order      string         `json:"order,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Children   []NodeDef      `json:"children,omitempty"`
}

// isGroup reports whether the node builds as a composite.
func (nd *NodeDef) isGroup() bool {
	if nd.Kind != "" {
		return nd.Kind == "group"
	}
	return len(nd.Children) > 0
}

// Validate checks structural integrity of the Definition:
//   - PL-001: node IDs must be non-empty
//   - PL-002: node IDs must be unique across the tree
//   - PL-003: order must be "", "sequential" or "random"
//   - PL-004: kind must be "", "group" or "leaf"
//   - PL-005: leaf nodes cannot have children
//   - PL-006: zero or negative iterations disable the subtree (warning)
//   - PL-007: group with no children never does work (warning)
func (d *Definition) Validate() []Diagnostic {
	var diags []Diagnostic
	if d.ID == "" {
		diags = append(diags, Diagnostic{
			Code:     "PL-001",
			Severity: SeverityError,
			Message:  "Plan ID must not be empty",
			Path:     "id",
		})
	}
	seen := make(map[string]bool)
	diags = append(diags, validateNode(&d.Root, "root", seen)...)
	return diags
}

func validateNode(nd *NodeDef, path string, seen map[string]bool) []Diagnostic {
	var diags []Diagnostic

	if nd.ID == "" {
		diags = append(diags, Diagnostic{
			Code:     "PL-001",
			Severity: SeverityError,
			Message:  "Node ID must not be empty",
			Path:     path + ".id",
		})
	} else if seen[nd.ID] {
		diags = append(diags, Diagnostic{
			Code:     "PL-002",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Duplicate node ID %q", nd.ID),
			Path:     path + ".id",
		})
	} else {
		seen[nd.ID] = true
	}

	if _, err := sessiontree.ParseOrder(nd.Order); err != nil {
		diags = append(diags, Diagnostic{
			Code:     "PL-003",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Node %q has unknown order %q", nd.ID, nd.Order),
			Path:     path + ".order",
		})
	}

	switch nd.Kind {
	case "", "group", "leaf":
	default:
		diags = append(diags, Diagnostic{
			Code:     "PL-004",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Node %q has unknown kind %q", nd.ID, nd.Kind),
			Path:     path + ".kind",
		})
	}

	if nd.Kind == "leaf" && len(nd.Children) > 0 {
		diags = append(diags, Diagnostic{
			Code:     "PL-005",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Leaf node %q must not have children", nd.ID),
			Path:     path + ".children",
		})
	}

	if nd.Iterations != nil && *nd.Iterations <= 0 {
		diags = append(diags, Diagnostic{
			Code:     "PL-006",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Node %q has iterations %d; its subtree will never run", nd.ID, *nd.Iterations),
			Path:     path + ".iterations",
		})
	}

	if nd.isGroup() && len(nd.Children) == 0 {
		diags = append(diags, Diagnostic{
			Code:     "PL-007",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Group node %q has no children", nd.ID),
			Path:     path + ".children",
		})
	}

	for i := range nd.Children {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		diags = append(diags, validateNode(&nd.Children[i], childPath, seen)...)
	}
	return diags
}

// LeafFactory instantiates the executable behavior of a leaf NodeDef.
// Implementations typically dispatch on the node's ID or payload to look
// up registered task functions or device drivers.
type LeafFactory func(NodeDef) (sessiontree.Runnable, error)

// BuildOption configures how a Definition is converted to an executable
// tree.
type BuildOption func(*buildConfig)

type buildConfig struct {
	leafFactory LeafFactory
	rng         *rand.Rand
}

// WithLeafFactory sets the function used to instantiate leaf Runnables
// from NodeDef descriptors.
func WithLeafFactory(factory LeafFactory) BuildOption {
	return func(c *buildConfig) {
		c.leafFactory = factory
	}
}

// WithRand sets a shared randomness source on every group node, making
// random traversal orders reproducible from a seed.
func WithRand(rng *rand.Rand) BuildOption {
	return func(c *buildConfig) {
		c.rng = rng
	}
}

// ToTree converts the Definition into an executable tree. Leaf nodes are
// resolved through the leaf factory; group nodes become composite nodes
// configured with the definition's iterations, order, and payload.
func (d *Definition) ToTree(opts ...BuildOption) (*sessiontree.TreeNode, error) {
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if !d.Root.isGroup() {
		return nil, fmt.Errorf("root node %q must be a group", d.Root.ID)
	}
	return buildGroup(&d.Root, cfg)
}

func buildGroup(nd *NodeDef, cfg *buildConfig) (*sessiontree.TreeNode, error) {
	order, err := sessiontree.ParseOrder(nd.Order)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", nd.ID, err)
	}

	node := sessiontree.NewTreeNode(nd.ID).WithOrder(order)
	if nd.Iterations != nil {
		node.WithIterations(*nd.Iterations)
	}
	if nd.Payload != nil {
		node.WithPayload(nd.Payload)
	}
	if cfg.rng != nil {
		node.WithRand(cfg.rng)
	}

	for i := range nd.Children {
		child := &nd.Children[i]
		var r sessiontree.Runnable
		if child.isGroup() {
			r, err = buildGroup(child, cfg)
		} else {
			r, err = buildLeaf(child, cfg)
		}
		if err != nil {
			return nil, err
		}
		if err := node.Add(r); err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.ID, err)
		}
	}
	return node, nil
}

func buildLeaf(nd *NodeDef, cfg *buildConfig) (sessiontree.Runnable, error) {
	if cfg.leafFactory == nil {
		return nil, fmt.Errorf("leaf node %q: leaf factory is required: use WithLeafFactory", nd.ID)
	}
	r, err := cfg.leafFactory(*nd)
	if err != nil {
		return nil, fmt.Errorf("creating leaf %q: %w", nd.ID, err)
	}
	return r, nil
}
