package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestManualAdvance(t *testing.T) {
	m := NewManual(epoch)
	m.Advance(3 * time.Second)
	if got := m.Now().Sub(epoch); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
}

func TestPausableFreezesWhilePaused(t *testing.T) {
	base := NewManual(epoch)
	p := NewPausable(base)

	base.Advance(time.Second)
	p.Pause()
	frozen := p.Now()

	base.Advance(5 * time.Second)
	if !p.Now().Equal(frozen) {
		t.Errorf("expected frozen time %v, got %v", frozen, p.Now())
	}
	if p.TotalPaused() != 5*time.Second {
		t.Errorf("expected 5s paused in progress, got %v", p.TotalPaused())
	}

	p.Resume()
	base.Advance(2 * time.Second)

	if got := p.Now().Sub(epoch); got != 3*time.Second {
		t.Errorf("expected 3s of game time, got %v", got)
	}
	if p.IsPaused() {
		t.Error("expected resumed clock")
	}
}

func TestPausableRepeatedCallsAreNoops(t *testing.T) {
	base := NewManual(epoch)
	p := NewPausable(base)

	p.Resume()
	p.Pause()
	base.Advance(time.Second)
	p.Pause()
	base.Advance(time.Second)
	p.Resume()
	p.Resume()

	if p.TotalPaused() != 2*time.Second {
		t.Errorf("expected 2s paused, got %v", p.TotalPaused())
	}
}
