// Package game is the level lifecycle controller: it creates, runs, pauses
// and disposes levels, owns the inventory, and turns puzzle wins into level
// transitions.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/inventory"
	"github.com/AaronLay10/holoquest/internal/level"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/puzzle"
	"github.com/AaronLay10/holoquest/internal/registry"
)

const tracerName = "github.com/AaronLay10/holoquest/internal/game"

// Config wires a Controller. Bus and Factory are required.
type Config struct {
	Bus        *bus.Bus
	Factory    level.Factory
	Logger     *logging.Logger
	Probe      Probe
	Presenter  Presenter
	Companions CompanionFactory
	Skill      SkillSource

	// GameClock, when set, is frozen while the controller is paused.
	GameClock *clock.Pausable

	Tracer trace.Tracer
}

// Controller runs one game. It is not safe for concurrent use; Session
// serializes access for concurrent hosts.
type Controller struct {
	bus        *bus.Bus
	factory    level.Factory
	log        *logging.Logger
	probe      Probe
	presenter  Presenter
	companions CompanionFactory
	skill      SkillSource
	gameClock  *clock.Pausable
	tracer     trace.Tracer

	state     RunState
	levelID   string
	level     level.Level
	inv       *inventory.Inventory
	companion Companion
	hint      *int

	// lifetime subscriptions live as long as the controller; levelSubs
	// are the current level's wiring and are revoked on every transition.
	lifetime  bus.SubscriptionSet
	levelSubs bus.SubscriptionSet

	levelStart   time.Time
	sceneReady   bool
	loopArmed    bool
	frames       uint64
	interactions uint64
}

// New creates an Uninitialized controller.
func New(cfg Config) *Controller {
	if cfg.Probe == nil {
		cfg.Probe = NopProbe{}
	}
	if cfg.Presenter == nil {
		cfg.Presenter = LogPresenter{Log: cfg.Logger}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	c := &Controller{
		bus:        cfg.Bus,
		factory:    cfg.Factory,
		log:        cfg.Logger,
		probe:      cfg.Probe,
		presenter:  cfg.Presenter,
		companions: cfg.Companions,
		skill:      cfg.Skill,
		gameClock:  cfg.GameClock,
		tracer:     cfg.Tracer,
		inv:        inventory.New(),
	}
	c.lifetime.Subscribe(c.bus, bus.TopicGameWin, c.onWin)
	return c
}

// State returns the run state.
func (c *Controller) State() RunState { return c.state }

// LevelID returns the current level id, or "" when none is attached.
func (c *Controller) LevelID() string { return c.levelID }

// Inventory returns the controller's inventory.
func (c *Controller) Inventory() *inventory.Inventory { return c.inv }

// Level returns the attached level, or nil.
func (c *Controller) Level() level.Level { return c.level }

// Initialize loads the first level. It is a no-op unless Uninitialized.
func (c *Controller) Initialize(ctx context.Context, levelID string, difficultyHint *int) error {
	if c.state != StateUninitialized {
		return nil
	}
	c.hint = difficultyHint
	return c.load(ctx, levelID, c.hint)
}

// LoadLevel replaces the current level. It is a no-op while Loading or
// after disposal. From Uninitialized it retries after a failed transition.
func (c *Controller) LoadLevel(ctx context.Context, levelID string) error {
	switch c.state {
	case StateLoading, StateDisposed:
		return nil
	}
	return c.load(ctx, levelID, c.tier())
}

// tier prefers the skill source's opinion over the caller's initial hint.
func (c *Controller) tier() *int {
	if c.skill != nil {
		if t := c.skill.Tier(); t > 0 {
			return &t
		}
	}
	return c.hint
}

func (c *Controller) load(ctx context.Context, levelID string, tier *int) error {
	ctx, span := c.tracer.Start(ctx, "game.load_level", trace.WithAttributes(
		attribute.String("level.id", levelID),
		attribute.String("level.previous", c.levelID),
	))
	defer span.End()

	started := time.Now()
	wasPaused := c.state == StatePaused
	c.loopArmed = false
	c.state = StateLoading
	// A load from Paused ends the pause: the new level starts on a running
	// game clock without the pause overlay.
	if c.gameClock != nil {
		c.gameClock.Resume()
	}
	if wasPaused {
		c.presenter.HidePause()
	}
	c.levelStart = c.now()
	c.publish(bus.TopicStageStarted, StageEvent{LevelID: levelID})

	if err := c.detach(); err != nil {
		c.log.Warn("game.dispose_failed", "previous level released with errors", map[string]interface{}{
			"level_id": c.levelID,
			"error":    err,
		})
	}
	c.levelID = ""

	lvl, err := c.factory.Create(levelID, tier)
	if err != nil {
		return c.fail(span, levelID, StageCreate, err, nil)
	}
	if err := lvl.Initialize(ctx); err != nil {
		return c.fail(span, levelID, StageInitialize, err, lvl)
	}
	if c.state != StateLoading {
		// Disposed while initializing.
		if derr := lvl.Dispose(); derr != nil {
			c.log.Warn("game.dispose_failed", "level disposed with errors", map[string]interface{}{
				"level_id": levelID,
				"error":    derr,
			})
		}
		return nil
	}

	c.level = lvl
	c.levelID = levelID
	c.wire(lvl)
	c.probe.Attach(lvl.Objects())
	if c.companions != nil {
		c.companion = c.companions(c.bus, lvl, &c.levelSubs)
	}

	c.state = StateRunning
	c.loopArmed = true
	c.presenter.SetPointerCapture(true)

	if !c.sceneReady {
		c.sceneReady = true
		c.publish(bus.TopicSceneReady, SceneReady{LevelID: levelID, Controller: c})
	}
	c.publish(bus.TopicLevelReset, StageEvent{LevelID: levelID})

	c.log.Info("game.level_loaded", "level loaded", map[string]interface{}{
		"level_id":    levelID,
		"objects":     len(lvl.Objects()),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// fail leaves the controller Uninitialized with nothing attached.
func (c *Controller) fail(span trace.Span, levelID, stage string, err error, lvl level.Level) error {
	if lvl != nil {
		if derr := lvl.Dispose(); derr != nil {
			c.log.Warn("game.dispose_failed", "failed level disposed with errors", map[string]interface{}{
				"level_id": levelID,
				"error":    derr,
			})
		}
	}
	c.level = nil
	c.levelID = ""
	c.levelSubs.RevokeAll()
	c.probe.Release()
	if c.state != StateDisposed {
		c.state = StateUninitialized
	}

	terr := &TransitionError{LevelID: levelID, Stage: stage, Err: err}
	span.RecordError(terr)
	span.SetStatus(codes.Error, terr.Error())
	c.log.Error("game.transition_failed", "level transition failed", map[string]interface{}{
		"level_id": levelID,
		"stage":    stage,
		"error":    err,
	})
	return terr
}

// detach tears down the current level: dispose it, empty the inventory,
// release the probe and companion, and revoke the level's subscriptions.
func (c *Controller) detach() error {
	var errs []error
	if c.level != nil {
		if err := c.level.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose level %s: %w", c.level.ID(), err))
		}
		c.level = nil
	}

	c.inv.Clear()
	c.publish(bus.TopicInventoryUpdated, c.inv.Items())

	c.probe.Release()
	if c.companion != nil {
		c.companion.Release()
		c.companion = nil
	}
	if n := c.levelSubs.RevokeAll(); n > 0 {
		c.log.Debug("game.subscriptions_revoked", "level subscriptions revoked", map[string]interface{}{
			"count": n,
		})
	}
	return errors.Join(errs...)
}

// wire subscribes the per-level handlers.
func (c *Controller) wire(lvl level.Level) {
	levelID := lvl.ID()
	c.levelSubs.Subscribe(c.bus, bus.TopicCollectItem, func(m bus.Message) {
		item, ok := asItem(m.Payload)
		if !ok {
			c.log.Warn("game.bad_item", "collectItem payload is not an item", map[string]interface{}{
				"level_id": levelID,
			})
			return
		}
		c.inv.Add(item)
		c.publish(bus.TopicInventoryUpdated, c.inv.Items())
	})
	c.levelSubs.Subscribe(c.bus, bus.TopicShowMessage, func(m bus.Message) {
		c.presenter.ShowMessage(bus.Text(m.Payload))
	})
	c.levelSubs.Subscribe(c.bus, bus.TopicPuzzleInteracted, func(m bus.Message) {
		c.interactions++
		c.log.Debug("game.interaction", "puzzle interaction", map[string]interface{}{
			"level_id": levelID,
			"payload":  m.Payload,
		})
	})
}

func asItem(payload any) (inventory.Item, bool) {
	switch p := payload.(type) {
	case inventory.Item:
		return p, true
	case *inventory.Item:
		if p != nil {
			return *p, true
		}
	}
	return inventory.Item{}, false
}

// onWin moves Running to Transitioning. Wins while loading or paused are
// ignored.
func (c *Controller) onWin(m bus.Message) {
	if c.state != StateRunning {
		c.log.Debug("game.win_ignored", "win signal ignored", map[string]interface{}{
			"state": c.state.String(),
		})
		return
	}
	c.state = StateTransitioning
	c.loopArmed = false
	c.presenter.SetPointerCapture(false)
	info := WinInfo{LevelID: c.levelID, NextLevelID: c.factory.NextLevelID(c.levelID)}
	c.presenter.ShowWin(info)
	c.log.Info("game.level_won", "level won", map[string]interface{}{
		"level_id":      info.LevelID,
		"next_level_id": info.NextLevelID,
	})
}

// Pause halts the frame loop. It reports whether the state changed.
func (c *Controller) Pause() bool {
	if c.state != StateRunning {
		return false
	}
	c.state = StatePaused
	c.loopArmed = false
	if c.gameClock != nil {
		c.gameClock.Pause()
	}
	c.presenter.ShowPause()
	c.presenter.SetPointerCapture(false)
	c.publish(bus.TopicGamePause, StageEvent{LevelID: c.levelID})
	return true
}

// Resume re-arms the frame loop. It reports whether the state changed.
func (c *Controller) Resume() bool {
	if c.state != StatePaused {
		return false
	}
	c.state = StateRunning
	c.loopArmed = true
	if c.gameClock != nil {
		c.gameClock.Resume()
	}
	c.presenter.HidePause()
	c.presenter.SetPointerCapture(true)
	c.publish(bus.TopicGameResume, StageEvent{LevelID: c.levelID})
	return true
}

// Tick runs one frame: probe, level, companion, presenter. It reports
// whether the frame ran.
func (c *Controller) Tick(dt time.Duration) bool {
	if !c.loopArmed || c.state != StateRunning {
		return false
	}
	c.frames++
	c.probe.Update(dt)
	if u, ok := c.level.(level.Updater); ok {
		u.Update(dt)
	}
	// A timer or composite may have won the level during the update.
	if c.state != StateRunning {
		return true
	}
	if c.companion != nil {
		c.companion.Update(dt)
	}
	c.presenter.Update(dt)
	return true
}

// Activate forwards an activation to the level while Running.
func (c *Controller) Activate(name, input string) (puzzle.Result, error) {
	if c.state != StateRunning || c.level == nil {
		return puzzle.Result{Outcome: puzzle.OutcomeIgnored}, nil
	}
	return c.level.Activate(name, input)
}

// Hover forwards a hover to the level while Running.
func (c *Controller) Hover(name string) bool {
	if c.state != StateRunning || c.level == nil {
		return false
	}
	return c.level.Hover(name)
}

// Unhover forwards a hover exit to the level while Running.
func (c *Controller) Unhover(name string) bool {
	if c.state != StateRunning || c.level == nil {
		return false
	}
	return c.level.Unhover(name)
}

// Advance is the win presentation's "next level": it loads the next level,
// or disposes the controller when there is none.
func (c *Controller) Advance(ctx context.Context) error {
	if c.state != StateTransitioning {
		return nil
	}
	finished := c.levelID
	c.publish(bus.TopicStageCompleted, c.completedEvent())
	next := c.factory.NextLevelID(finished)
	if next == "" {
		return c.Dispose()
	}
	return c.load(ctx, next, c.tier())
}

// Exit is the win presentation's "return to menu": it asks the host for a
// restart and disposes the controller.
func (c *Controller) Exit() error {
	if c.state != StateTransitioning {
		return nil
	}
	finished := c.levelID
	c.publish(bus.TopicStageCompleted, c.completedEvent())
	c.publish(bus.TopicGameRestart, StageEvent{LevelID: finished})
	return c.Dispose()
}

func (c *Controller) now() time.Time {
	if c.gameClock != nil {
		return c.gameClock.Now()
	}
	return time.Now()
}

func (c *Controller) completedEvent() StageEvent {
	return StageEvent{LevelID: c.levelID, Duration: c.now().Sub(c.levelStart)}
}

// Dispose tears everything down. A second call is a no-op. Release
// failures are returned together after teardown completes.
func (c *Controller) Dispose() error {
	if c.state == StateDisposed {
		return nil
	}
	c.loopArmed = false
	c.state = StateDisposed
	err := c.detach()
	c.lifetime.RevokeAll()
	c.levelID = ""
	if c.gameClock != nil {
		c.gameClock.Resume()
	}
	if err != nil {
		c.log.Error("game.dispose_failed", "dispose completed with errors", map[string]interface{}{
			"error": err,
		})
	}
	c.log.Info("game.disposed", "controller disposed", nil)
	return err
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State        RunState          `json:"state"`
	LevelID      string            `json:"level_id,omitempty"`
	Inventory    []inventory.Item  `json:"inventory"`
	Objects      []registry.Object `json:"objects"`
	Level        *level.State      `json:"level,omitempty"`
	Frames       uint64            `json:"frames"`
	Interactions uint64            `json:"interactions"`
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		State:        c.state,
		LevelID:      c.levelID,
		Inventory:    c.inv.Items(),
		Objects:      []registry.Object{},
		Frames:       c.frames,
		Interactions: c.interactions,
	}
	if c.level != nil {
		s.Objects = c.level.Objects()
		if sn, ok := c.level.(level.Snapshotter); ok {
			st := sn.Snapshot()
			s.Level = &st
		}
	}
	return s
}

func (c *Controller) publish(topic bus.Topic, payload any) {
	if err := c.bus.Publish(topic, payload); err != nil {
		c.log.Error("game.publish_failed", "failed to publish", map[string]interface{}{
			"topic": string(topic),
			"error": err,
		})
	}
}
