// Package clock supplies the time sources used by timed puzzle transitions.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Wall is real wall-clock time. It keeps running while the game is paused.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now() }

// Pausable is game time: it stops advancing between Pause and Resume.
type Pausable struct {
	mu          sync.RWMutex
	base        Clock
	paused      bool
	pausedAt    time.Time
	totalPaused time.Duration
}

// NewPausable wraps base. A nil base uses Wall.
func NewPausable(base Clock) *Pausable {
	if base == nil {
		base = Wall{}
	}
	return &Pausable{base: base}
}

// Now returns base time minus every paused interval. While paused it is frozen.
func (p *Pausable) Now() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.paused {
		return p.pausedAt.Add(-p.totalPaused)
	}
	return p.base.Now().Add(-p.totalPaused)
}

// Pause freezes game time. Repeated calls are no-ops.
func (p *Pausable) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	p.pausedAt = p.base.Now()
}

// Resume continues game time. Repeated calls are no-ops.
func (p *Pausable) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.totalPaused += p.base.Now().Sub(p.pausedAt)
	p.paused = false
	p.pausedAt = time.Time{}
}

// IsPaused reports the pause state.
func (p *Pausable) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// TotalPaused returns the cumulative paused duration, including a pause in progress.
func (p *Pausable) TotalPaused() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := p.totalPaused
	if p.paused {
		total += p.base.Now().Sub(p.pausedAt)
	}
	return total
}

// Manual is a clock that only moves when told to. Used by tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual starts a manual clock at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
