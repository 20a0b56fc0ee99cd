// Package puzzle is the progression state machine of a level: a state table
// of counters, sequences, gates and composites, and a dispatcher that applies
// data-described actions to it.
package puzzle

import (
	"strings"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/logging"
)

// ObjectControl lets the dispatcher toggle interactability of a source
// object. The registry implements it.
type ObjectControl interface {
	SetInteractable(name string, on bool) bool
}

// Config wires an Engine.
type Config struct {
	LevelID string
	Bus     *bus.Bus
	Table   *Table
	Clock   clock.Clock
	Control ObjectControl
	Logger  *logging.Logger

	// TimerScale multiplies every timed-unlock delay. Zero means 1.
	TimerScale float64

	// OnEffect is called for every effect a successful action starts.
	OnEffect func(source string, e Effect)
}

type notice struct {
	topic   bus.Topic
	payload any
}

// Engine applies actions to one level's state table. It is not safe for
// concurrent use; the controller serializes access.
type Engine struct {
	levelID  string
	bus      *bus.Bus
	table    *Table
	sched    *Scheduler
	control  ObjectControl
	log      *logging.Logger
	scale    float64
	onEffect func(string, Effect)

	queue    []notice
	disposed bool
}

// NewEngine creates an engine. A nil Table starts empty.
func NewEngine(cfg Config) *Engine {
	if cfg.Table == nil {
		cfg.Table = NewTable()
	}
	if cfg.TimerScale <= 0 {
		cfg.TimerScale = 1
	}
	return &Engine{
		levelID:  cfg.LevelID,
		bus:      cfg.Bus,
		table:    cfg.Table,
		sched:    NewScheduler(cfg.Clock),
		control:  cfg.Control,
		log:      cfg.Logger,
		scale:    cfg.TimerScale,
		onEffect: cfg.OnEffect,
	}
}

// Table returns the state table.
func (e *Engine) Table() *Table { return e.table }

// Scheduler returns the timer scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Dispatch applies an action triggered by the object named source. State is
// read, validated and mutated first; notifications go out afterwards.
func (e *Engine) Dispatch(source string, a Action, input string) Result {
	if e.disposed {
		return Result{Outcome: OutcomeIgnored, Target: a.Target}
	}

	res := e.apply(source, a, input)
	e.settle()
	e.enqueue(bus.TopicPuzzleInteracted, Interaction{
		LevelID: e.levelID,
		Source:  source,
		Kind:    a.Kind,
		Target:  a.Target,
		Outcome: res.Outcome,
		Message: res.Message,
	})
	e.flush()

	e.log.Debug("puzzle.dispatch", "action dispatched", map[string]interface{}{
		"level_id": e.levelID,
		"source":   source,
		"kind":     string(a.Kind),
		"target":   a.Target,
		"outcome":  string(res.Outcome),
	})
	return res
}

// Tick fires due timers and then evaluates composites.
func (e *Engine) Tick() {
	if e.disposed {
		return
	}
	e.sched.Fire()
	e.settle()
	e.flush()
}

// Dispose cancels every pending timer. Nothing fires afterwards.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	n := e.sched.Dispose()
	e.queue = nil
	if n > 0 {
		e.log.Debug("puzzle.timers_cancelled", "pending timers cancelled", map[string]interface{}{
			"level_id": e.levelID,
			"count":    n,
		})
	}
}

// Snapshot returns the state table view.
func (e *Engine) Snapshot() []ElementState {
	return e.table.Snapshot()
}

func (e *Engine) apply(source string, a Action, input string) Result {
	res := Result{Target: a.Target}

	if a.Kind == KindNone {
		res.Outcome = OutcomeIgnored
		return res
	}

	for _, r := range a.Requires {
		if !EvalCondition(r.When, e.table) {
			res.Outcome = OutcomeRejected
			res.Message = e.say(source, orDefault(r.Reject, defaultReject))
			return res
		}
	}

	switch a.Kind {
	case KindCollect:
		return e.collect(source, a, res)
	case KindAlignSequence:
		return e.align(source, a, res)
	case KindActivateOnce:
		return e.activate(source, a, res)
	case KindTimedUnlock:
		return e.timedUnlock(source, a, res)
	case KindAnswer:
		return e.answer(source, a, input, res)
	}
	res.Outcome = OutcomeIgnored
	return res
}

func (e *Engine) collect(source string, a Action, res Result) Result {
	c := e.table.Counter(a.Target)
	if c == nil {
		res.Outcome = OutcomeIgnored
		return res
	}
	if c.Completed() && a.Messages.Already != "" {
		res.Outcome = OutcomeAlready
		res.Message = e.say(source, a.Messages.Already)
		return res
	}
	if !c.Collect(source, a.Consume) {
		res.Outcome = OutcomeIgnored
		return res
	}
	if a.Consume && e.control != nil {
		e.control.SetInteractable(source, false)
	}
	if a.Item != nil {
		e.enqueue(bus.TopicCollectItem, *a.Item)
	}
	if c.Completed() {
		res.Outcome = OutcomeCompleted
		res.Message = e.say(source, firstNonEmpty(a.Messages.Success, a.Messages.Progress))
		e.startEffect(source, a.Effect)
		e.finish(source, a)
		return res
	}
	res.Outcome = OutcomeProgress
	res.Message = e.say(source, a.Messages.Progress)
	return res
}

func (e *Engine) align(source string, a Action, res Result) Result {
	s := e.table.Sequence(a.Target)
	if s == nil {
		res.Outcome = OutcomeIgnored
		return res
	}
	switch s.Submit(a.Token) {
	case SubmitClosed:
		res.Outcome = OutcomeAlready
		res.Message = e.say(source, orDefault(a.Messages.Already, defaultAlready))
	case SubmitPartial:
		res.Outcome = OutcomeProgress
		res.Message = e.say(source, a.Messages.Progress)
	case SubmitMismatch:
		res.Outcome = OutcomeMismatch
		res.Message = e.say(source, orDefault(a.Messages.Mismatch, defaultMismatch))
	case SubmitMatched:
		res.Outcome = OutcomeCompleted
		res.Message = e.say(source, a.Messages.Success)
		e.startEffect(source, a.Effect)
		e.finish(source, a)
	}
	return res
}

func (e *Engine) activate(source string, a Action, res Result) Result {
	g := e.table.Gate(a.Target)
	if g == nil {
		res.Outcome = OutcomeIgnored
		return res
	}
	if !g.Open() {
		res.Outcome = OutcomeAlready
		res.Message = e.say(source, orDefault(a.Messages.Already, defaultAlready))
		return res
	}
	res.Outcome = OutcomeCompleted
	res.Message = e.say(source, a.Messages.Success)
	e.startEffect(source, a.Effect)
	e.finish(source, a)
	return res
}

func (e *Engine) timedUnlock(source string, a Action, res Result) Result {
	g := e.table.Gate(a.Target)
	if g == nil {
		res.Outcome = OutcomeIgnored
		return res
	}
	if g.IsOpen() {
		if g.Ready() {
			res.Outcome = OutcomeAlready
			res.Message = e.say(source, orDefault(a.Messages.Already, defaultAlready))
			return res
		}
		res.Outcome = OutcomePending
		res.Message = e.say(source, orDefault(a.Messages.Pending, defaultPending))
		return res
	}

	g.Open()
	g.timed = true
	delay := time.Duration(float64(a.Delay) * e.scale)
	ready := a.Messages.Ready
	target := a.Target
	e.sched.After(target+".ready", delay, func() {
		g.ready = true
		e.say(source, ready)
		e.log.Debug("puzzle.timer_fired", "timed unlock ready", map[string]interface{}{
			"level_id": e.levelID,
			"target":   target,
		})
	})

	res.Outcome = OutcomeCompleted
	res.Message = e.say(source, a.Messages.Success)
	e.startEffect(source, a.Effect)
	e.finish(source, a)
	return res
}

func (e *Engine) answer(source string, a Action, input string, res Result) Result {
	g := e.table.Gate(a.Target)
	if g == nil {
		res.Outcome = OutcomeIgnored
		return res
	}
	if g.IsOpen() {
		res.Outcome = OutcomeAlready
		res.Message = e.say(source, orDefault(a.Messages.Already, defaultAlready))
		return res
	}
	input = strings.TrimSpace(input)
	if input == "" {
		res.Outcome = OutcomePending
		res.Message = e.say(source, orDefault(a.Messages.Prompt, defaultPrompt))
		return res
	}
	if !strings.EqualFold(input, strings.TrimSpace(a.Answer)) {
		res.Outcome = OutcomeMismatch
		res.Message = e.say(source, orDefault(a.Messages.Mismatch, defaultMismatch))
		return res
	}
	g.Open()
	res.Outcome = OutcomeCompleted
	res.Message = e.say(source, a.Messages.Success)
	e.startEffect(source, a.Effect)
	e.finish(source, a)
	return res
}

// finish queues the win notification for actions that end the level.
func (e *Engine) finish(source string, a Action) {
	if a.Win {
		e.enqueue(bus.TopicGameWin, Win{LevelID: e.levelID, Source: source})
	}
}

// settle completes every composite whose condition now holds, repeating
// until nothing changes so composites may build on each other.
func (e *Engine) settle() {
	for changed := true; changed; {
		changed = false
		for _, id := range e.table.order {
			c := e.table.composites[id]
			if c == nil || c.completed {
				continue
			}
			if !EvalCondition(c.when, e.table) {
				continue
			}
			c.completed = true
			changed = true
			e.say(id, c.message)
			if c.win {
				e.enqueue(bus.TopicGameWin, Win{LevelID: e.levelID, Source: id})
			}
		}
	}
}

func (e *Engine) startEffect(source string, fx *Effect) {
	if fx == nil || fx.Name == "" {
		return
	}
	if e.onEffect != nil {
		e.onEffect(source, *fx)
	}
	e.enqueue(bus.TopicEffectStarted, EffectStarted{
		LevelID:  e.levelID,
		Source:   source,
		Name:     fx.Name,
		Duration: fx.Duration,
	})
}

// say renders msg and queues it as a showMessage. Empty messages are dropped.
func (e *Engine) say(source, msg string) string {
	if msg == "" {
		return ""
	}
	text := e.table.Render(msg)
	e.enqueue(bus.TopicShowMessage, bus.Notice{Text: text, Source: source})
	return text
}

func (e *Engine) enqueue(topic bus.Topic, payload any) {
	e.queue = append(e.queue, notice{topic: topic, payload: payload})
}

// flush publishes queued notifications in order. Handlers may re-enter the
// engine, so the queue is detached first.
func (e *Engine) flush() {
	pending := e.queue
	e.queue = nil
	if e.bus == nil {
		return
	}
	for _, n := range pending {
		if err := e.bus.Publish(n.topic, n.payload); err != nil {
			e.log.Error("puzzle.publish_failed", "failed to publish notification", map[string]interface{}{
				"level_id": e.levelID,
				"topic":    string(n.topic),
				"error":    err,
			})
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
