package level

import "time"

// ActiveEffect is a running visual effect.
type ActiveEffect struct {
	Name     string        `json:"name"`
	Source   string        `json:"source"`
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Done reports whether the effect has run its course.
func (e ActiveEffect) Done() bool { return e.Elapsed >= e.Duration }

// Effects is the frame-ticked list of active effects. Effects advance only
// through Update, so they stop while the frame loop is paused.
type Effects struct {
	active []ActiveEffect
}

// Start adds an effect.
func (fx *Effects) Start(name, source string, d time.Duration) {
	fx.active = append(fx.active, ActiveEffect{Name: name, Source: source, Duration: d})
}

// Update advances every effect by dt and removes finished ones, which it returns.
func (fx *Effects) Update(dt time.Duration) []ActiveEffect {
	if len(fx.active) == 0 {
		return nil
	}
	var finished []ActiveEffect
	kept := fx.active[:0]
	for _, e := range fx.active {
		e.Elapsed += dt
		if e.Done() {
			finished = append(finished, e)
			continue
		}
		kept = append(kept, e)
	}
	fx.active = kept
	return finished
}

// Active returns a copy of the running effects.
func (fx *Effects) Active() []ActiveEffect {
	return append([]ActiveEffect{}, fx.active...)
}

func (fx *Effects) Len() int { return len(fx.active) }

// Clear drops every effect and returns how many were running.
func (fx *Effects) Clear() int {
	n := len(fx.active)
	fx.active = nil
	return n
}
