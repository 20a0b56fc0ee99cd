package puzzle

import (
	"fmt"
	"sort"
)

// ElementType names the shape of a puzzle element.
type ElementType string

const (
	ElementCounter   ElementType = "counter"
	ElementSequence  ElementType = "sequence"
	ElementGate      ElementType = "gate"
	ElementComposite ElementType = "composite"
)

// Counter is the threshold-counter shape: bounded [0, target].
type Counter struct {
	id       string
	target   int
	count    int
	consumed map[string]struct{}
}

// Collect increments the counter. With consume set, each source counts once.
// It reports false, changing nothing, at the cap or for a consumed source.
func (c *Counter) Collect(source string, consume bool) bool {
	if c.count >= c.target {
		return false
	}
	if consume {
		if _, ok := c.consumed[source]; ok {
			return false
		}
		c.consumed[source] = struct{}{}
	}
	c.count++
	return true
}

func (c *Counter) Count() int      { return c.count }
func (c *Counter) Target() int     { return c.target }
func (c *Counter) Completed() bool { return c.count >= c.target }

// SubmitResult is the effect of one token on a Sequence.
type SubmitResult int

const (
	SubmitPartial SubmitResult = iota
	SubmitMatched
	SubmitMismatch
	SubmitClosed
)

// Sequence is the ordered-sequence shape.
type Sequence struct {
	id        string
	target    []string
	working   []string
	completed bool
}

// Submit appends a token. Comparison happens only once the working sequence
// reaches the target length: an exact match completes the sequence for good,
// anything else discards the working sequence.
func (s *Sequence) Submit(token string) SubmitResult {
	if s.completed {
		return SubmitClosed
	}
	s.working = append(s.working, token)
	if len(s.working) < len(s.target) {
		return SubmitPartial
	}
	for i := range s.target {
		if s.working[i] != s.target[i] {
			s.working = nil
			return SubmitMismatch
		}
	}
	s.completed = true
	return SubmitMatched
}

// Progress returns a copy of the working sequence.
func (s *Sequence) Progress() []string { return append([]string{}, s.working...) }
func (s *Sequence) Target() []string   { return append([]string{}, s.target...) }
func (s *Sequence) Completed() bool    { return s.completed }

// Gate is the prerequisite-gated single-shot shape. A timed gate is only
// ready once its cool-down has elapsed.
type Gate struct {
	id    string
	open  bool
	timed bool
	ready bool
}

// Open performs the one-time transition. It reports false if already open.
func (g *Gate) Open() bool {
	if g.open {
		return false
	}
	g.open = true
	return true
}

func (g *Gate) IsOpen() bool { return g.open }

// Ready reports whether the gate is open and any cool-down has elapsed.
func (g *Gate) Ready() bool { return g.open && (!g.timed || g.ready) }

// Composite is a derived flag that completes once its condition holds.
type Composite struct {
	id        string
	when      string
	message   string
	win       bool
	completed bool
}

func (c *Composite) Completed() bool { return c.completed }

// Table holds the puzzle state of one level, keyed by element id. It is kept
// apart from level content so it can be inspected and tested on its own.
type Table struct {
	counters   map[string]*Counter
	sequences  map[string]*Sequence
	gates      map[string]*Gate
	composites map[string]*Composite
	order      []string
	types      map[string]ElementType
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		counters:   make(map[string]*Counter),
		sequences:  make(map[string]*Sequence),
		gates:      make(map[string]*Gate),
		composites: make(map[string]*Composite),
		types:      make(map[string]ElementType),
	}
}

func (t *Table) claim(id string, typ ElementType) error {
	if id == "" {
		return fmt.Errorf("puzzle element id is required")
	}
	if existing, ok := t.types[id]; ok {
		return fmt.Errorf("duplicate puzzle element %s (already a %s)", id, existing)
	}
	t.types[id] = typ
	t.order = append(t.order, id)
	return nil
}

// AddCounter declares a threshold counter.
func (t *Table) AddCounter(id string, target int) (*Counter, error) {
	if target <= 0 {
		return nil, fmt.Errorf("counter %s: target must be positive", id)
	}
	if err := t.claim(id, ElementCounter); err != nil {
		return nil, err
	}
	c := &Counter{id: id, target: target, consumed: make(map[string]struct{})}
	t.counters[id] = c
	return c, nil
}

// AddSequence declares an ordered sequence.
func (t *Table) AddSequence(id string, target []string) (*Sequence, error) {
	if len(target) == 0 {
		return nil, fmt.Errorf("sequence %s: target order is empty", id)
	}
	if err := t.claim(id, ElementSequence); err != nil {
		return nil, err
	}
	s := &Sequence{id: id, target: append([]string{}, target...)}
	t.sequences[id] = s
	return s, nil
}

// AddGate declares a single-shot gate.
func (t *Table) AddGate(id string) (*Gate, error) {
	if err := t.claim(id, ElementGate); err != nil {
		return nil, err
	}
	g := &Gate{id: id}
	t.gates[id] = g
	return g, nil
}

// AddComposite declares a derived flag.
func (t *Table) AddComposite(id, when, message string, win bool) (*Composite, error) {
	if when == "" {
		return nil, fmt.Errorf("composite %s: condition is empty", id)
	}
	if err := t.claim(id, ElementComposite); err != nil {
		return nil, err
	}
	c := &Composite{id: id, when: when, message: message, win: win}
	t.composites[id] = c
	return c, nil
}

func (t *Table) Counter(id string) *Counter     { return t.counters[id] }
func (t *Table) Sequence(id string) *Sequence   { return t.sequences[id] }
func (t *Table) Gate(id string) *Gate           { return t.gates[id] }
func (t *Table) Composite(id string) *Composite { return t.composites[id] }

// TypeOf returns the element type for id.
func (t *Table) TypeOf(id string) (ElementType, bool) {
	typ, ok := t.types[id]
	return typ, ok
}

// Truth answers "<id>.<attr>" for conditions. Unknown ids are false.
func (t *Table) Truth(id, attr string) bool {
	switch attr {
	case "completed", "resolved":
		switch t.types[id] {
		case ElementCounter:
			return t.counters[id].Completed()
		case ElementSequence:
			return t.sequences[id].Completed()
		case ElementGate:
			return t.gates[id].IsOpen()
		case ElementComposite:
			return t.composites[id].Completed()
		}
	case "ready":
		switch t.types[id] {
		case ElementGate:
			return t.gates[id].Ready()
		case ElementCounter, ElementSequence, ElementComposite:
			return t.Truth(id, "completed")
		}
	}
	return false
}

// Count returns the count of a counter or the progress of a sequence.
func (t *Table) Count(id string) (int, bool) {
	switch t.types[id] {
	case ElementCounter:
		return t.counters[id].Count(), true
	case ElementSequence:
		s := t.sequences[id]
		if s.completed {
			return len(s.target), true
		}
		return len(s.working), true
	}
	return 0, false
}

// Target returns the target size of a counter or sequence.
func (t *Table) Target(id string) (int, bool) {
	switch t.types[id] {
	case ElementCounter:
		return t.counters[id].Target(), true
	case ElementSequence:
		return len(t.sequences[id].target), true
	}
	return 0, false
}

// ElementState is a read-only view of one element.
type ElementState struct {
	ID        string      `json:"id"`
	Type      ElementType `json:"type"`
	Completed bool        `json:"completed"`
	Ready     bool        `json:"ready"`
	Count     int         `json:"count,omitempty"`
	Target    int         `json:"target,omitempty"`
	Progress  []string    `json:"progress,omitempty"`
}

// Snapshot returns every element in declaration order.
func (t *Table) Snapshot() []ElementState {
	out := make([]ElementState, 0, len(t.order))
	for _, id := range t.order {
		st := ElementState{
			ID:        id,
			Type:      t.types[id],
			Completed: t.Truth(id, "completed"),
			Ready:     t.Truth(id, "ready"),
		}
		st.Count, _ = t.Count(id)
		st.Target, _ = t.Target(id)
		if s := t.sequences[id]; s != nil {
			st.Progress = s.Progress()
		}
		out = append(out, st)
	}
	return out
}

// IDs returns element ids sorted, for diagnostics.
func (t *Table) IDs() []string {
	ids := append([]string{}, t.order...)
	sort.Strings(ids)
	return ids
}
