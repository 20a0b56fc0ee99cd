package level

import (
	"errors"
	"strings"
	"testing"

	"github.com/AaronLay10/holoquest/internal/registry"
)

const minimalLevel = `
version: 1
id: test
gates:
  - id: door
objects:
  - name: door
    kind: puzzle
    action:
      kind: activate-once
      target: door
`

func TestParseMinimal(t *testing.T) {
	def, err := Parse([]byte(minimalLevel))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.ID != "test" || len(def.Objects) != 1 {
		t.Errorf("unexpected definition %+v", def)
	}
	if !def.Objects[0].IsInteractable() {
		t.Error("expected interactable by default")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad version",
			yaml: "version: 2\nid: x\n",
			want: "unsupported level version",
		},
		{
			name: "missing id",
			yaml: "version: 1\n",
			want: "level id is required",
		},
		{
			name: "duplicate object",
			yaml: `
version: 1
id: x
gates: [{id: g}]
objects:
  - {name: a, kind: puzzle, action: {kind: activate-once, target: g}}
  - {name: a, kind: puzzle, action: {kind: activate-once, target: g}}
`,
			want: "duplicate object name",
		},
		{
			name: "unknown kind",
			yaml: `
version: 1
id: x
objects:
  - {name: a, kind: door}
`,
			want: "unknown kind",
		},
		{
			name: "dangling target",
			yaml: `
version: 1
id: x
objects:
  - {name: a, kind: puzzle, action: {kind: activate-once, target: nowhere}}
`,
			want: "unknown target",
		},
		{
			name: "dangling requirement",
			yaml: `
version: 1
id: x
gates: [{id: g}]
objects:
  - name: a
    kind: puzzle
    action:
      kind: activate-once
      target: g
      requires: [{when: ghost.completed, reject: no}]
`,
			want: "unknown element ghost",
		},
		{
			name: "unknown resource",
			yaml: `
version: 1
id: x
objects:
  - {name: a, kind: puzzle, resource: missing}
`,
			want: "unknown resource",
		},
		{
			name: "cycle",
			yaml: `
version: 1
id: x
gates: [{id: a}, {id: b}]
objects:
  - name: first
    kind: puzzle
    action:
      kind: activate-once
      target: a
      requires: [{when: b.completed, reject: wait for b}]
  - name: second
    kind: puzzle
    action:
      kind: activate-once
      target: b
      requires: [{when: a.completed, reject: wait for a}]
`,
			want: "dependency cycle",
		},
		{
			name: "self next",
			yaml: "version: 1\nid: x\nnext: x\n",
			want: "cannot be itself",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestDuplicateObjectWrapsSentinel(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
id: x
objects:
  - {name: a, kind: puzzle}
  - {name: a, kind: puzzle}
`))
	if !errors.Is(err, registry.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestYAMLAnchorsAndDurations(t *testing.T) {
	c := mustCatalog(t, Options{})
	def, _ := c.Definition("celestial_forge")
	var hammer, gold *ObjectDef
	for i := range def.Objects {
		switch def.Objects[i].Name {
		case "forge_hammer":
			hammer = &def.Objects[i]
		case "constellation_gold":
			gold = &def.Objects[i]
		}
	}
	if hammer == nil || hammer.Action.Delay.Seconds() != 3 {
		t.Errorf("expected 3s hammer delay, got %+v", hammer)
	}
	if gold == nil || gold.Action.Token != "Gold" || gold.Action.Target != "constellation" {
		t.Errorf("expected merged star action, got %+v", gold)
	}
}
