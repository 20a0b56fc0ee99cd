package level

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/holoquest/internal/puzzle"
	"github.com/AaronLay10/holoquest/internal/registry"
)

// Definition is the YAML description of a level.
type Definition struct {
	Version    int             `yaml:"version"`
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Next       string          `yaml:"next,omitempty"`
	Hints      []string        `yaml:"hints,omitempty"`
	Difficulty map[int]float64 `yaml:"difficulty,omitempty"`
	Resources  []Resource      `yaml:"resources,omitempty"`
	Counters   []CounterDef    `yaml:"counters,omitempty"`
	Sequences  []SequenceDef   `yaml:"sequences,omitempty"`
	Gates      []GateDef       `yaml:"gates,omitempty"`
	Composites []CompositeDef  `yaml:"composites,omitempty"`
	Objects    []ObjectDef     `yaml:"objects"`
}

// Resource is an asset the level loads at initialization.
type Resource struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type CounterDef struct {
	ID     string `yaml:"id"`
	Target int    `yaml:"target"`
}

type SequenceDef struct {
	ID    string   `yaml:"id"`
	Order []string `yaml:"order"`
}

type GateDef struct {
	ID string `yaml:"id"`
}

type CompositeDef struct {
	ID      string `yaml:"id"`
	When    string `yaml:"when"`
	Message string `yaml:"message,omitempty"`
	Win     bool   `yaml:"win,omitempty"`
}

// ObjectDef is one interactive object. Interactable defaults to true.
type ObjectDef struct {
	Name         string        `yaml:"name"`
	Kind         registry.Kind `yaml:"kind"`
	Interactable *bool         `yaml:"interactable,omitempty"`
	Resource     string        `yaml:"resource,omitempty"`
	Action       puzzle.Action `yaml:"action"`
}

// IsInteractable applies the default.
func (o ObjectDef) IsInteractable() bool {
	return o.Interactable == nil || *o.Interactable
}

// Parse decodes and validates a definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse level YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile reads a definition from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read level file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// TimerScale returns the timer multiplier for a skill tier.
func (d *Definition) TimerScale(tier *int) float64 {
	if tier == nil {
		return 1
	}
	if s, ok := d.Difficulty[*tier]; ok && s > 0 {
		return s
	}
	return 1
}

// BuildTable creates a fresh state table for the level's puzzle elements.
func (d *Definition) BuildTable() (*puzzle.Table, error) {
	t := puzzle.NewTable()
	for _, c := range d.Counters {
		if _, err := t.AddCounter(c.ID, c.Target); err != nil {
			return nil, err
		}
	}
	for _, s := range d.Sequences {
		if _, err := t.AddSequence(s.ID, s.Order); err != nil {
			return nil, err
		}
	}
	for _, g := range d.Gates {
		if _, err := t.AddGate(g.ID); err != nil {
			return nil, err
		}
	}
	for _, c := range d.Composites {
		if _, err := t.AddComposite(c.ID, c.When, c.Message, c.Win); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Validate checks structure, references and that the puzzle dependency
// graph has no cycles.
func (d *Definition) Validate() error {
	if d.Version != 1 {
		return fmt.Errorf("unsupported level version: %d", d.Version)
	}
	if d.ID == "" {
		return fmt.Errorf("level id is required")
	}
	if d.Next == d.ID {
		return fmt.Errorf("level %s: next level cannot be itself", d.ID)
	}

	table, err := d.BuildTable()
	if err != nil {
		return fmt.Errorf("level %s: %w", d.ID, err)
	}

	resources := make(map[string]bool, len(d.Resources))
	for _, r := range d.Resources {
		if r.Name == "" {
			return fmt.Errorf("level %s: resource name is required", d.ID)
		}
		if resources[r.Name] {
			return fmt.Errorf("level %s: duplicate resource %s", d.ID, r.Name)
		}
		resources[r.Name] = true
	}

	// deps[x] lists the elements x waits on.
	deps := make(map[string][]string)
	for _, c := range d.Composites {
		if !puzzle.ValidCondition(c.When) {
			return fmt.Errorf("level %s: composite %s: invalid condition %q", d.ID, c.ID, c.When)
		}
		for _, ref := range puzzle.References(c.When) {
			if _, ok := table.TypeOf(ref); !ok {
				return fmt.Errorf("level %s: composite %s references unknown element %s", d.ID, c.ID, ref)
			}
			deps[c.ID] = append(deps[c.ID], ref)
		}
	}

	names := make(map[string]bool, len(d.Objects))
	for _, o := range d.Objects {
		if o.Name == "" {
			return fmt.Errorf("level %s: object name is required", d.ID)
		}
		if names[o.Name] {
			return fmt.Errorf("level %s: %w: %s", d.ID, registry.ErrDuplicateName, o.Name)
		}
		names[o.Name] = true
		if o.Kind != registry.KindPuzzle && o.Kind != registry.KindPuzzlePiece {
			return fmt.Errorf("level %s: object %s: unknown kind %q", d.ID, o.Name, o.Kind)
		}
		if o.Resource != "" && !resources[o.Resource] {
			return fmt.Errorf("level %s: object %s references unknown resource %s", d.ID, o.Name, o.Resource)
		}
		if err := o.Action.Validate(table); err != nil {
			return fmt.Errorf("level %s: object %s: %w", d.ID, o.Name, err)
		}
		for _, r := range o.Action.Requires {
			for _, ref := range puzzle.References(r.When) {
				if _, ok := table.TypeOf(ref); !ok {
					return fmt.Errorf("level %s: object %s requires unknown element %s", d.ID, o.Name, ref)
				}
				deps[o.Action.Target] = append(deps[o.Action.Target], ref)
			}
		}
	}

	if cycle := findCycle(deps); cycle != nil {
		return fmt.Errorf("level %s: puzzle dependency cycle: %v", d.ID, cycle)
	}
	return nil
}

// findCycle returns one cycle in the dependency graph, or nil.
func findCycle(deps map[string][]string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = visiting
		stack = append(stack, n)
		for _, m := range deps[n] {
			switch state[m] {
			case visiting:
				for i, s := range stack {
					if s == m {
						cycle = append(append([]string{}, stack[i:]...), m)
						break
					}
				}
				return true
			case unvisited:
				if visit(m) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	nodes := make([]string, 0, len(deps))
	for n := range deps {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if state[n] == unvisited && visit(n) {
			return cycle
		}
	}
	return nil
}
