package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const jsonPlan = `{
  "id": "demo-session",
  "version": "1",
  "root": {
    "id": "session",
    "children": [
      {"id": "fixation"},
      {
        "id": "block",
        "iterations": 2,
        "order": "random",
        "children": [
          {"id": "trial-a"},
          {"id": "trial-b"}
        ]
      }
    ]
  }
}`

const yamlPlan = `id: demo-session
version: "1"
root:
  id: session
  children:
    - id: fixation
    - id: block
      iterations: 2
      order: random
      children:
        - id: trial-a
        - id: trial-b
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeTemp(t, "plan.json", jsonPlan)
	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.ID != "demo-session" {
		t.Errorf("ID = %q, want %q", d.ID, "demo-session")
	}
	if got := len(d.Root.Children); got != 2 {
		t.Fatalf("root has %d children, want 2", got)
	}
	block := d.Root.Children[1]
	if block.Iterations == nil || *block.Iterations != 2 {
		t.Errorf("block iterations = %v, want 2", block.Iterations)
	}
	if block.Order != "random" {
		t.Errorf("block order = %q, want %q", block.Order, "random")
	}
}

func TestLoad_YAML(t *testing.T) {
	for _, name := range []string{"plan.yaml", "plan.yml"} {
		path := writeTemp(t, name, yamlPlan)
		d, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if d.ID != "demo-session" {
			t.Errorf("%s: ID = %q, want %q", name, d.ID, "demo-session")
		}
		if got := len(d.Root.Children[1].Children); got != 2 {
			t.Errorf("%s: block has %d children, want 2", name, got)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("Load() of missing file should fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeTemp(t, "plan.json", `{"id": `)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() of malformed JSON should fail")
	}
}

func TestLoad_ValidationErrorsSurfaceAsDiagnostics(t *testing.T) {
	path := writeTemp(t, "plan.json", `{
	  "id": "bad",
	  "root": {
	    "id": "session",
	    "children": [
	      {"id": "dup"},
	      {"id": "dup"}
	    ]
	  }
	}`)

	_, err := Load(path)
	var derr *DiagnosticError
	if !errors.As(err, &derr) {
		t.Fatalf("Load() error is %T, want *DiagnosticError", err)
	}
	if len(derr.Diagnostics) == 0 {
		t.Fatal("DiagnosticError carries no diagnostics")
	}
	if derr.Diagnostics[0].Code != "PL-002" {
		t.Errorf("diagnostic code = %q, want PL-002", derr.Diagnostics[0].Code)
	}
}

func TestLoad_WarningsDoNotFail(t *testing.T) {
	path := writeTemp(t, "plan.json", `{
	  "id": "warn",
	  "root": {
	    "id": "session",
	    "children": [
	      {"id": "dead", "iterations": 0, "children": [{"id": "inner"}]}
	    ]
	  }
	}`)

	if _, err := Load(path); err != nil {
		t.Errorf("Load() with warning-only plan error = %v, want nil", err)
	}
}

func TestIsYAML(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"plan.yaml", true},
		{"plan.YML", true},
		{"plan.json", false},
		{"plan", false},
	}
	for _, tt := range tests {
		if got := isYAML(tt.path); got != tt.want {
			t.Errorf("isYAML(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
