package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/session-labs/sessiontree/plan"
)

// Load reads a plan file, validates it, and returns the Definition.
// Validation warnings do not fail the load; errors do, wrapped in a
// DiagnosticError.
func Load(path string) (*plan.Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return LoadBytes(data, path)
}

// LoadBytes parses and validates plan content already in memory. The
// path is used only to choose between JSON and YAML parsing.
func LoadBytes(data []byte, path string) (*plan.Definition, error) {
	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	var d plan.Definition
	if err := json.Unmarshal(jsonData, &d); err != nil {
		return nil, fmt.Errorf("parsing plan definition: %w", err)
	}

	diags := d.Validate()
	if plan.HasErrors(diags) {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	return &d, nil
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []plan.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := plan.Errors(e.Diagnostics)
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
