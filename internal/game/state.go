package game

import (
	"fmt"
	"time"
)

// RunState is the lifecycle state of a Controller.
type RunState int

const (
	StateUninitialized RunState = iota
	StateLoading
	StateRunning
	StatePaused
	StateTransitioning
	StateDisposed
)

var stateNames = map[RunState]string{
	StateUninitialized: "uninitialized",
	StateLoading:       "loading",
	StateRunning:       "running",
	StatePaused:        "paused",
	StateTransitioning: "transitioning",
	StateDisposed:      "disposed",
}

func (s RunState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// MarshalText renders the state by name in JSON.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition stages reported in TransitionError.
const (
	StageCreate     = "create"
	StageInitialize = "initialize"
)

// TransitionError reports a level transition that failed. The controller
// is left Uninitialized with no level attached.
type TransitionError struct {
	LevelID string
	Stage   string
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("load level %s: %s failed: %v", e.LevelID, e.Stage, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// StageEvent is the stageStarted, stageCompleted, level:reset and
// game:restart payload. Duration is set on stageCompleted: the level's play
// time on the game clock, excluding pauses.
type StageEvent struct {
	LevelID  string        `json:"level_id"`
	Duration time.Duration `json:"duration,omitempty"`
}

// SceneReady is the scene:ready payload.
type SceneReady struct {
	LevelID    string      `json:"level_id"`
	Controller *Controller `json:"-"`
}
