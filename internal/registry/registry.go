// Package registry is the per-level arena of interactive objects. Objects
// are addressed by a stable EntityID, looked up by unique name, and carry
// their action as data for the puzzle dispatcher.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AaronLay10/holoquest/internal/puzzle"
)

// Kind classifies an interactive object.
type Kind string

const (
	KindPuzzle      Kind = "puzzle"
	KindPuzzlePiece Kind = "puzzle_piece"
)

// EntityID is a stable handle into one registry. IDs start at 1.
type EntityID int

var (
	ErrDuplicateName = errors.New("duplicate object name")
	ErrSealed        = errors.New("registry is sealed")
	ErrUnknownObject = errors.New("unknown object")
)

// Descriptor describes an object to register.
type Descriptor struct {
	Name         string
	Kind         Kind
	Interactable bool
	Action       puzzle.Action

	// Content is the level's visual handle for the object.
	Content any

	OnHover   func(Object)
	OnUnhover func(Object)
}

// Object is a read-only snapshot of a registered object.
type Object struct {
	ID           EntityID      `json:"id"`
	Name         string        `json:"name"`
	Kind         Kind          `json:"kind"`
	Interactable bool          `json:"interactable"`
	Highlighted  bool          `json:"highlighted"`
	Action       puzzle.Action `json:"action"`
}

type entry struct {
	Object
	content   any
	onHover   func(Object)
	onUnhover func(Object)
}

// Registry holds the objects of one level.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	sealed  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// Register adds an object and returns its id.
func (r *Registry) Register(d Descriptor) (EntityID, error) {
	if d.Name == "" {
		return 0, fmt.Errorf("object name is required")
	}
	switch d.Kind {
	case KindPuzzle, KindPuzzlePiece:
	default:
		return 0, fmt.Errorf("object %s: unknown kind %q", d.Name, d.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return 0, fmt.Errorf("%w: cannot register %s", ErrSealed, d.Name)
	}
	if _, ok := r.byName[d.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
	}

	e := &entry{
		Object: Object{
			ID:           EntityID(len(r.entries) + 1),
			Name:         d.Name,
			Kind:         d.Kind,
			Interactable: d.Interactable,
			Action:       d.Action,
		},
		content:   d.Content,
		onHover:   d.OnHover,
		onUnhover: d.OnUnhover,
	}
	r.entries = append(r.entries, e)
	r.byName[d.Name] = e
	return e.ID, nil
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether registration is closed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// All returns snapshots of every object in registration order.
func (r *Registry) All() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Object, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Object)
	}
	return out
}

// Get returns the object with the given id.
func (r *Registry) Get(id EntityID) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 1 || int(id) > len(r.entries) {
		return Object{}, false
	}
	return r.entries[id-1].Object, true
}

// Lookup returns the object with the given name.
func (r *Registry) Lookup(name string) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return Object{}, false
	}
	return e.Object, true
}

// Content returns the visual handle registered with the object.
func (r *Registry) Content(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e.content
	}
	return nil
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Hover highlights an interactable object. It reports true only when the
// highlight state changed; the hover hook runs only then.
func (r *Registry) Hover(name string) bool {
	r.mu.Lock()
	e, ok := r.byName[name]
	if !ok || !e.Interactable || e.Highlighted {
		r.mu.Unlock()
		return false
	}
	e.Highlighted = true
	snap, hook := e.Object, e.onHover
	r.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	return true
}

// Unhover clears the highlight. It reports true only when the highlight
// state changed.
func (r *Registry) Unhover(name string) bool {
	r.mu.Lock()
	e, ok := r.byName[name]
	if !ok || !e.Highlighted {
		r.mu.Unlock()
		return false
	}
	e.Highlighted = false
	snap, hook := e.Object, e.onUnhover
	r.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	return true
}

// SetInteractable toggles whether the object responds to activation.
// Disabling a highlighted object also clears its highlight.
func (r *Registry) SetInteractable(name string, on bool) bool {
	r.mu.Lock()
	e, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := e.Interactable != on
	e.Interactable = on
	unhover := !on && e.Highlighted
	r.mu.Unlock()

	if unhover {
		r.Unhover(name)
	}
	return changed
}

// Clear discards every object and closes the registry for good.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.byName = make(map[string]*entry)
	r.sealed = true
}
