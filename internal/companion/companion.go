// Package companion is the per-level hint helper. It remembers the last
// thing the player got wrong, answers hint requests, and nudges a player
// who has gone quiet.
package companion

import (
	"sync"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/level"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/puzzle"
)

// Source tags every companion message.
const Source = "companion"

// DefaultIdleAfter is how long the player may stay idle before a nudge.
const DefaultIdleAfter = 90 * time.Second

const fallbackHint = "Look around. Something here still wants your attention."

// Options configure companions.
type Options struct {
	// IdleAfter of zero uses DefaultIdleAfter; negative disables nudges.
	IdleAfter time.Duration
	Logger    *logging.Logger
}

// Companion is bound to one level.
type Companion struct {
	mu        sync.Mutex
	bus       *bus.Bus
	levelID   string
	hints     []string
	next      int
	lastHint  string
	idle      time.Duration
	idleAfter time.Duration
	nudged    bool
	released  bool
	log       *logging.Logger
}

// New creates a companion for lvl. Its subscriptions are tracked in subs.
func New(b *bus.Bus, lvl level.Level, subs *bus.SubscriptionSet, opts Options) *Companion {
	if opts.IdleAfter == 0 {
		opts.IdleAfter = DefaultIdleAfter
	}
	c := &Companion{
		bus:       b,
		levelID:   lvl.ID(),
		idleAfter: opts.IdleAfter,
		log:       opts.Logger,
	}
	if h, ok := lvl.(level.Hinter); ok {
		c.hints = h.Hints()
	}
	subs.Subscribe(b, bus.TopicPuzzleInteracted, c.onInteraction)
	subs.Subscribe(b, bus.TopicHintRequest, func(bus.Message) { c.Hint() })
	return c
}

// Factory adapts New to the controller's companion hook.
func Factory(opts Options) game.CompanionFactory {
	return func(b *bus.Bus, lvl level.Level, subs *bus.SubscriptionSet) game.Companion {
		return New(b, lvl, subs, opts)
	}
}

func (c *Companion) onInteraction(m bus.Message) {
	in, ok := interaction(m.Payload)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = 0
	c.nudged = false
	switch in.Outcome {
	case puzzle.OutcomeRejected, puzzle.OutcomeMismatch, puzzle.OutcomePending:
		c.lastHint = in.Message
	case puzzle.OutcomeCompleted:
		c.lastHint = ""
	}
}

func interaction(payload any) (puzzle.Interaction, bool) {
	switch p := payload.(type) {
	case puzzle.Interaction:
		return p, true
	case *puzzle.Interaction:
		if p != nil {
			return *p, true
		}
	}
	return puzzle.Interaction{}, false
}

// Hint says the most useful thing the companion knows: the reason the last
// attempt failed, else the next line of the level's hints.
func (c *Companion) Hint() string {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return ""
	}
	text := c.lastHint
	if text == "" {
		text = c.nextHintLocked()
	}
	c.idle = 0
	c.mu.Unlock()

	c.say(text, "hint")
	return text
}

func (c *Companion) nextHintLocked() string {
	if len(c.hints) == 0 {
		return fallbackHint
	}
	h := c.hints[c.next%len(c.hints)]
	c.next++
	return h
}

// Update advances the idle timer and nudges once per idle stretch.
func (c *Companion) Update(dt time.Duration) {
	c.mu.Lock()
	if c.released || c.idleAfter < 0 || c.nudged {
		c.mu.Unlock()
		return
	}
	c.idle += dt
	if c.idle < c.idleAfter {
		c.mu.Unlock()
		return
	}
	c.nudged = true
	text := c.nextHintLocked()
	c.mu.Unlock()

	c.say(text, "nudge")
}

// Release silences the companion. Subscriptions are revoked by the owner of
// the subscription set.
func (c *Companion) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
}

func (c *Companion) say(text, kind string) {
	c.log.Debug("companion.say", text, map[string]interface{}{
		"level_id": c.levelID,
		"kind":     kind,
	})
	if err := c.bus.Publish(bus.TopicShowMessage, bus.Notice{Text: text, Severity: "hint", Source: Source}); err != nil {
		c.log.Warn("companion.publish_failed", "failed to publish hint", map[string]interface{}{
			"error": err,
		})
	}
}
