package api

import (
	"sync"

	"github.com/AaronLay10/holoquest/internal/game"
)

// Check statuses reported by /ready.
const (
	StatusOK          = "ok"
	StatusNotReady    = "not_ready"
	StatusUnavailable = "unavailable"
	StatusDisabled    = "disabled"
)

type dependency struct {
	connected func() bool
	optional  bool
}

func (d *dependency) up() bool {
	return d != nil && d.connected != nil && d.connected()
}

func (d *dependency) check() CheckStatus {
	switch {
	case d == nil:
		return CheckStatus{Status: StatusDisabled, Optional: true}
	case d.up():
		return CheckStatus{Status: StatusOK, Optional: d.optional}
	case d.optional:
		return CheckStatus{Status: StatusUnavailable, Optional: true}
	default:
		return CheckStatus{Status: StatusNotReady}
	}
}

// Readiness tracks the dependencies /ready reports on. A dependency that is
// never registered is reported as disabled and does not block readiness.
type Readiness struct {
	mu      sync.RWMutex
	mqtt    *dependency
	storage *dependency
	props   func() int
}

// SetMQTT registers the broker connection check.
func (r *Readiness) SetMQTT(connected func() bool, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mqtt = &dependency{connected: connected, optional: optional}
}

// SetStorage registers the journal connection check.
func (r *Readiness) SetStorage(connected func() bool, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage = &dependency{connected: connected, optional: optional}
}

// SetProps installs the connected-prop counter reported in /metrics.
func (r *Readiness) SetProps(count func() int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.props = count
}

func (r *Readiness) propsConnected() int {
	r.mu.RLock()
	count := r.props
	r.mu.RUnlock()
	if count == nil {
		return 0
	}
	return count()
}

func (r *Readiness) deps() (mqtt, storage *dependency) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mqtt, r.storage
}

// CheckStatus is one entry of ReadinessResponse.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the /ready body.
type ReadinessResponse struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckStatus `json:"checks"`
}

// Check reports readiness for the given game state. The game is ready once a
// level is attached, running or paused.
func (r *Readiness) Check(state game.RunState) ReadinessResponse {
	mqtt, storage := r.deps()

	gameCheck := CheckStatus{Status: StatusOK}
	if state != game.StateRunning && state != game.StatePaused {
		gameCheck.Status = StatusNotReady
	}

	resp := ReadinessResponse{
		Ready: true,
		Checks: map[string]CheckStatus{
			"game":    gameCheck,
			"mqtt":    mqtt.check(),
			"storage": storage.check(),
		},
	}
	for _, c := range resp.Checks {
		if c.Status == StatusNotReady {
			resp.Ready = false
		}
	}
	return resp
}
