package puzzle

import (
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/holoquest/internal/clock"
)

type scheduled struct {
	id        uint64
	name      string
	due       time.Time
	fn        func()
	cancelled bool
}

// Scheduler holds one-shot callbacks. Callbacks only run from Fire, which
// the frame loop drives, so they never race the rest of the level.
type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	pending  []*scheduled
	nextID   uint64
	disposed bool
}

// NewScheduler creates a scheduler. A nil clock uses wall time.
func NewScheduler(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.Wall{}
	}
	return &Scheduler{clock: c}
}

// After schedules fn to run on the first Fire at or after now+d.
// It returns false on a disposed scheduler.
func (s *Scheduler) After(name string, d time.Duration, fn func()) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return 0, false
	}
	s.nextID++
	s.pending = append(s.pending, &scheduled{
		id:   s.nextID,
		name: name,
		due:  s.clock.Now().Add(d),
		fn:   fn,
	})
	return s.nextID, true
}

// Cancel removes a pending callback.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.id == id {
			p.cancelled = true
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Fire runs every due callback in due order and returns how many ran.
func (s *Scheduler) Fire() int {
	s.mu.Lock()
	if s.disposed || len(s.pending) == 0 {
		s.mu.Unlock()
		return 0
	}
	now := s.clock.Now()
	var due, rest []*scheduled
	for _, p := range s.pending {
		if !p.due.After(now) {
			due = append(due, p)
		} else {
			rest = append(rest, p)
		}
	}
	s.pending = rest
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})

	ran := 0
	for _, p := range due {
		s.mu.Lock()
		stop := s.disposed || p.cancelled
		s.mu.Unlock()
		if stop {
			continue
		}
		p.fn()
		ran++
	}
	return ran
}

// CancelAll drops every pending callback and returns how many were dropped.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	for _, p := range s.pending {
		p.cancelled = true
	}
	s.pending = nil
	return n
}

// Dispose cancels everything; the scheduler accepts and fires nothing afterwards.
func (s *Scheduler) Dispose() int {
	n := s.CancelAll()
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	return n
}

// Pending returns the number of scheduled callbacks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Names returns the names of pending callbacks.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.name)
	}
	return out
}
