// Package level defines what a playable level is and provides the
// YAML-scripted implementation used by every built-in room.
package level

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/puzzle"
	"github.com/AaronLay10/holoquest/internal/registry"
)

var (
	ErrUnknownLevel = errors.New("unknown level")
	ErrDisposed     = errors.New("level disposed")
	ErrNotReady     = errors.New("level not initialized")
)

// Level is one self-contained playable scene.
type Level interface {
	ID() string
	Initialize(ctx context.Context) error
	Objects() []registry.Object
	Activate(name, input string) (puzzle.Result, error)
	Hover(name string) bool
	Unhover(name string) bool
	Dispose() error
}

// Updater is implemented by levels with per-frame work.
type Updater interface {
	Update(dt time.Duration)
}

// Snapshotter is implemented by levels that expose their state.
type Snapshotter interface {
	Snapshot() State
}

// Hinter is implemented by levels that carry hint text.
type Hinter interface {
	Hints() []string
}

// State is the inspectable state of a level.
type State struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Puzzles []puzzle.ElementState `json:"puzzles"`
	Effects []ActiveEffect        `json:"effects,omitempty"`
	Timers  []string              `json:"timers,omitempty"`
}

// Factory creates levels by id.
type Factory interface {
	Create(levelID string, skillTier *int) (Level, error)
	NextLevelID(levelID string) string
}

// Options are the collaborators a scripted level needs.
type Options struct {
	Bus    *bus.Bus
	Logger *logging.Logger
	Loader ContentLoader
	Clock  clock.Clock
}

// ObjectEvent is the object:hover and object:leave payload.
type ObjectEvent struct {
	LevelID string        `json:"level_id"`
	Name    string        `json:"name"`
	Kind    registry.Kind `json:"kind"`
}

// LoadingError is the loading:error payload.
type LoadingError struct {
	LevelID  string `json:"level_id"`
	Resource string `json:"resource"`
	Error    string `json:"error"`
}

// Scripted is a level built from a Definition.
type Scripted struct {
	def    *Definition
	tier   *int
	opts   Options
	log    *logging.Logger
	reg    *registry.Registry
	eng    *puzzle.Engine
	fx     Effects
	assets []*Asset

	initialized bool
	disposed    bool
}

// NewScripted creates an uninitialized level.
func NewScripted(def *Definition, skillTier *int, opts Options) *Scripted {
	if opts.Loader == nil {
		opts.Loader = VirtualLoader{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Wall{}
	}
	return &Scripted{
		def:  def,
		tier: skillTier,
		opts: opts,
		log:  opts.Logger.With(map[string]interface{}{"level_id": def.ID}),
		reg:  registry.New(),
	}
}

func (s *Scripted) ID() string { return s.def.ID }

// Hints returns the hint lines of the level.
func (s *Scripted) Hints() []string { return append([]string{}, s.def.Hints...) }

// Initialize loads resources, builds the puzzle engine and registers objects.
// A resource that fails to load is replaced by a placeholder.
func (s *Scripted) Initialize(ctx context.Context) error {
	if s.disposed {
		return ErrDisposed
	}
	if s.initialized {
		return nil
	}

	byName := make(map[string]*Asset, len(s.def.Resources))
	for _, r := range s.def.Resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		asset, err := s.opts.Loader.Load(ctx, r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.log.Warn("level.asset_placeholder", "asset failed to load, using placeholder", map[string]interface{}{
				"resource": r.Name,
				"path":     r.Path,
				"error":    err,
			})
			s.publish(bus.TopicLoadingError, LoadingError{LevelID: s.def.ID, Resource: r.Name, Error: err.Error()})
			asset = placeholder(r)
		}
		s.assets = append(s.assets, asset)
		byName[r.Name] = asset
	}

	table, err := s.def.BuildTable()
	if err != nil {
		return fmt.Errorf("build puzzle table: %w", err)
	}
	s.eng = puzzle.NewEngine(puzzle.Config{
		LevelID:    s.def.ID,
		Bus:        s.opts.Bus,
		Table:      table,
		Clock:      s.opts.Clock,
		Control:    s.reg,
		Logger:     s.log,
		TimerScale: s.def.TimerScale(s.tier),
		OnEffect: func(source string, e puzzle.Effect) {
			s.fx.Start(e.Name, source, e.Duration)
		},
	})

	for _, o := range s.def.Objects {
		var content any
		if a, ok := byName[o.Resource]; ok {
			content = a
		}
		_, err := s.reg.Register(registry.Descriptor{
			Name:         o.Name,
			Kind:         o.Kind,
			Interactable: o.IsInteractable(),
			Action:       o.Action,
			Content:      content,
			OnHover:      s.hoverHook(bus.TopicObjectHover),
			OnUnhover:    s.hoverHook(bus.TopicObjectLeave),
		})
		if err != nil {
			return fmt.Errorf("register object: %w", err)
		}
	}
	s.reg.Seal()
	s.initialized = true

	s.log.Info("level.initialized", "level initialized", map[string]interface{}{
		"objects":   s.reg.Len(),
		"resources": len(s.assets),
	})
	return nil
}

func (s *Scripted) hoverHook(topic bus.Topic) func(registry.Object) {
	return func(o registry.Object) {
		s.publish(topic, ObjectEvent{LevelID: s.def.ID, Name: o.Name, Kind: o.Kind})
	}
}

// Objects returns the registered objects in registration order.
func (s *Scripted) Objects() []registry.Object {
	return s.reg.All()
}

// Activate runs the action of the named object.
func (s *Scripted) Activate(name, input string) (puzzle.Result, error) {
	if s.disposed {
		return puzzle.Result{}, ErrDisposed
	}
	if !s.initialized {
		return puzzle.Result{}, ErrNotReady
	}
	obj, ok := s.reg.Lookup(name)
	if !ok {
		return puzzle.Result{}, fmt.Errorf("%w: %s", registry.ErrUnknownObject, name)
	}
	if !obj.Interactable {
		return puzzle.Result{Outcome: puzzle.OutcomeIgnored, Target: obj.Action.Target}, nil
	}
	return s.eng.Dispatch(obj.Name, obj.Action, input), nil
}

func (s *Scripted) Hover(name string) bool {
	if s.disposed {
		return false
	}
	return s.reg.Hover(name)
}

func (s *Scripted) Unhover(name string) bool {
	if s.disposed {
		return false
	}
	return s.reg.Unhover(name)
}

// Update advances effects and fires due puzzle timers.
func (s *Scripted) Update(dt time.Duration) {
	if s.disposed || !s.initialized {
		return
	}
	for _, e := range s.fx.Update(dt) {
		s.log.Debug("level.effect_finished", "effect finished", map[string]interface{}{
			"effect": e.Name,
			"source": e.Source,
		})
	}
	s.eng.Tick()
}

// Snapshot returns the puzzle table, running effects and pending timers.
func (s *Scripted) Snapshot() State {
	st := State{ID: s.def.ID, Name: s.def.Name}
	if s.eng != nil && !s.disposed {
		st.Puzzles = s.eng.Snapshot()
		st.Timers = s.eng.Scheduler().Names()
	}
	st.Effects = s.fx.Active()
	return st
}

// Dispose cancels timers, releases every resource and clears the registry.
// A failing release does not stop the others; all failures are returned.
func (s *Scripted) Dispose() error {
	if s.disposed {
		return nil
	}
	s.disposed = true

	if s.eng != nil {
		s.eng.Dispose()
	}
	s.fx.Clear()

	var errs []error
	for i := len(s.assets) - 1; i >= 0; i-- {
		a := s.assets[i]
		if a.Placeholder {
			continue
		}
		if err := s.opts.Loader.Release(a); err != nil {
			s.log.Error("level.release_failed", "failed to release resource", map[string]interface{}{
				"resource": a.Resource.Name,
				"error":    err,
			})
			errs = append(errs, fmt.Errorf("release %s: %w", a.Resource.Name, err))
		}
	}
	s.assets = nil
	s.reg.Clear()

	s.log.Info("level.disposed", "level disposed", nil)
	return errors.Join(errs...)
}

func (s *Scripted) publish(topic bus.Topic, payload any) {
	if s.opts.Bus == nil {
		return
	}
	if err := s.opts.Bus.Publish(topic, payload); err != nil {
		s.log.Error("level.publish_failed", "failed to publish", map[string]interface{}{
			"topic": string(topic),
			"error": err,
		})
	}
}
