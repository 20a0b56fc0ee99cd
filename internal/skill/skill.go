// Package skill estimates how quickly the player clears levels and turns
// that into the difficulty tier used for later loads.
package skill

import (
	"sync"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/storage"
)

// Tiers. Higher is a stronger player and a harder level.
const (
	TierNone     = 0
	TierNovice   = 1
	TierStandard = 2
	TierExpert   = 3
)

// DefaultWindow is the number of recent completions averaged.
const DefaultWindow = 3

// DefaultRestoreLimit is the number of journal rows replayed by Restore.
const DefaultRestoreLimit = 1000

// Thresholds map an average completion time to a tier: at or under Fast is
// expert, at or over Slow is novice, anything between is standard.
type Thresholds struct {
	Fast time.Duration `yaml:"fast" json:"fast"`
	Slow time.Duration `yaml:"slow" json:"slow"`
}

// DefaultThresholds suit the built-in levels.
var DefaultThresholds = Thresholds{Fast: 4 * time.Minute, Slow: 12 * time.Minute}

// Completion is one cleared level.
type Completion struct {
	LevelID  string        `json:"level_id"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Options configure a Tracker.
type Options struct {
	// Clock measures play time. Pass the game's pausable clock so paused
	// time does not count against the player.
	Clock      clock.Clock
	Thresholds Thresholds
	Window     int
	Logger     *logging.Logger
}

// Tracker listens to stage events and keeps the current tier.
type Tracker struct {
	mu          sync.Mutex
	clock       clock.Clock
	thresholds  Thresholds
	window      int
	log         *logging.Logger
	started     map[string]time.Time
	completions []Completion
	subs        bus.SubscriptionSet
}

// New creates a tracker with no history.
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.Wall{}
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Tracker{
		clock:      opts.Clock,
		thresholds: opts.Thresholds,
		window:     opts.Window,
		log:        opts.Logger,
		started:    make(map[string]time.Time),
	}
}

// Attach subscribes to stageStarted and stageCompleted on b.
func (t *Tracker) Attach(b *bus.Bus) {
	t.subs.Subscribe(b, bus.TopicStageStarted, func(m bus.Message) {
		if id := levelID(m.Payload); id != "" {
			t.Started(id, t.clock.Now())
		}
	})
	t.subs.Subscribe(b, bus.TopicStageCompleted, func(m bus.Message) {
		if id := levelID(m.Payload); id != "" {
			t.Completed(id, t.clock.Now())
		}
	})
}

// Detach revokes the tracker's subscriptions.
func (t *Tracker) Detach() {
	t.subs.RevokeAll()
}

func levelID(payload any) string {
	switch p := payload.(type) {
	case game.StageEvent:
		return p.LevelID
	case *game.StageEvent:
		if p != nil {
			return p.LevelID
		}
	case string:
		return p
	}
	return ""
}

// Started records the start of a level attempt. A restart of the same
// level resets its clock.
func (t *Tracker) Started(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[id] = at
}

// Completed records a cleared level. Completions without a start are
// ignored.
func (t *Tracker) Completed(id string, at time.Time) {
	t.mu.Lock()
	start, ok := t.started[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.record(Completion{LevelID: id, Duration: at.Sub(start), At: at})
}

// CompletedIn records a cleared level with a play time measured elsewhere,
// such as the duration carried on a journaled stageCompleted.
func (t *Tracker) CompletedIn(id string, d time.Duration, at time.Time) {
	t.mu.Lock()
	t.record(Completion{LevelID: id, Duration: d, At: at})
}

// record appends c and unlocks t.mu before logging.
func (t *Tracker) record(c Completion) {
	delete(t.started, c.LevelID)
	t.completions = append(t.completions, c)
	tier := t.tierLocked()
	t.mu.Unlock()

	t.log.Info("skill.level_completed", "level completion recorded", map[string]interface{}{
		"level_id":    c.LevelID,
		"duration_ms": c.Duration.Milliseconds(),
		"tier":        tier,
	})
}

// Tier returns the tier for the next level, or TierNone with no history.
func (t *Tracker) Tier() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tierLocked()
}

func (t *Tracker) tierLocked() int {
	if len(t.completions) == 0 {
		return TierNone
	}
	recent := t.completions
	if len(recent) > t.window {
		recent = recent[len(recent)-t.window:]
	}
	var total time.Duration
	for _, c := range recent {
		total += c.Duration
	}
	avg := total / time.Duration(len(recent))
	switch {
	case avg <= t.thresholds.Fast:
		return TierExpert
	case avg >= t.thresholds.Slow:
		return TierNovice
	default:
		return TierStandard
	}
}

// Completions returns the recorded history, oldest first.
func (t *Tracker) Completions() []Completion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Completion(nil), t.completions...)
}

// Querier reads journal rows newest first.
type Querier interface {
	Query(limit int) ([]storage.Row, error)
}

// Restore replays journaled stage events so the tier survives a restart.
// A stageCompleted that carries a duration uses it; older rows fall back to
// the gap between journal timestamps, which includes paused time. It returns
// the number of rows read. A nil querier restores nothing.
func (t *Tracker) Restore(q Querier, limit int) (int, error) {
	if q == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}
	rows, err := q.Query(limit)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	for _, row := range storage.Chronological(rows) {
		var ev game.StageEvent
		switch bus.Topic(row.Topic) {
		case bus.TopicStageStarted:
			if err := row.Decode(&ev); err != nil || ev.LevelID == "" {
				continue
			}
			t.Started(ev.LevelID, row.Timestamp)
		case bus.TopicStageCompleted:
			if err := row.Decode(&ev); err != nil || ev.LevelID == "" {
				continue
			}
			if ev.Duration > 0 {
				t.CompletedIn(ev.LevelID, ev.Duration, row.Timestamp)
				continue
			}
			t.Completed(ev.LevelID, row.Timestamp)
		}
	}

	// Attempts still open in the journal were interrupted by the restart.
	t.mu.Lock()
	t.started = make(map[string]time.Time)
	tier := t.tierLocked()
	n := len(t.completions)
	t.mu.Unlock()

	t.log.Info("skill.restored", "skill history restored from journal", map[string]interface{}{
		"rows":        len(rows),
		"completions": n,
		"tier":        tier,
	})
	return len(rows), nil
}
