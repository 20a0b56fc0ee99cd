package puzzle

import (
	"fmt"
	"time"

	"github.com/AaronLay10/holoquest/internal/inventory"
)

// Kind selects what an Action does to the state table.
type Kind string

const (
	KindNone          Kind = ""
	KindCollect       Kind = "collect"
	KindAlignSequence Kind = "align-sequence"
	KindActivateOnce  Kind = "activate-once"
	KindTimedUnlock   Kind = "timed-unlock"
	KindAnswer        Kind = "answer"
)

// Requirement is a precondition with its own rejection message.
type Requirement struct {
	When   string `yaml:"when" json:"when"`
	Reject string `yaml:"reject" json:"reject"`
}

// Messages are the user-facing texts of one action. They may contain
// {<id>.count}, {<id>.target}, {<id>.remaining} and {<id>.progress}.
type Messages struct {
	Success  string `yaml:"success,omitempty" json:"success,omitempty"`
	Progress string `yaml:"progress,omitempty" json:"progress,omitempty"`
	Already  string `yaml:"already,omitempty" json:"already,omitempty"`
	Mismatch string `yaml:"mismatch,omitempty" json:"mismatch,omitempty"`
	Pending  string `yaml:"pending,omitempty" json:"pending,omitempty"`
	Ready    string `yaml:"ready,omitempty" json:"ready,omitempty"`
	Prompt   string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

// Effect names a visual effect started by a successful action.
type Effect struct {
	Name     string        `yaml:"name" json:"name"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// Action is the data attached to an interactive object. The dispatcher
// interprets it; objects hold no behavior of their own.
type Action struct {
	Kind     Kind            `yaml:"kind" json:"kind"`
	Target   string          `yaml:"target,omitempty" json:"target,omitempty"`
	Token    string          `yaml:"token,omitempty" json:"token,omitempty"`
	Answer   string          `yaml:"answer,omitempty" json:"answer,omitempty"`
	Consume  bool            `yaml:"consume,omitempty" json:"consume,omitempty"`
	Win      bool            `yaml:"win,omitempty" json:"win,omitempty"`
	Delay    time.Duration   `yaml:"delay,omitempty" json:"delay,omitempty"`
	Item     *inventory.Item `yaml:"item,omitempty" json:"item,omitempty"`
	Effect   *Effect         `yaml:"effect,omitempty" json:"effect,omitempty"`
	Requires []Requirement   `yaml:"requires,omitempty" json:"requires,omitempty"`
	Messages Messages        `yaml:"messages,omitempty" json:"messages,omitempty"`
}

// expectedTarget maps each kind to the element type it operates on.
var expectedTarget = map[Kind]ElementType{
	KindCollect:       ElementCounter,
	KindAlignSequence: ElementSequence,
	KindActivateOnce:  ElementGate,
	KindTimedUnlock:   ElementGate,
	KindAnswer:        ElementGate,
}

// Validate checks the action against a state table.
func (a Action) Validate(t *Table) error {
	if a.Kind == KindNone {
		return nil
	}
	want, ok := expectedTarget[a.Kind]
	if !ok {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if a.Target == "" {
		return fmt.Errorf("%s action: target is required", a.Kind)
	}
	got, ok := t.TypeOf(a.Target)
	if !ok {
		return fmt.Errorf("%s action: unknown target %s", a.Kind, a.Target)
	}
	if got != want {
		return fmt.Errorf("%s action: target %s is a %s, want %s", a.Kind, a.Target, got, want)
	}
	switch a.Kind {
	case KindAlignSequence:
		if a.Token == "" {
			return fmt.Errorf("align-sequence action on %s: token is required", a.Target)
		}
	case KindTimedUnlock:
		if a.Delay <= 0 {
			return fmt.Errorf("timed-unlock action on %s: delay must be positive", a.Target)
		}
	case KindAnswer:
		if a.Answer == "" {
			return fmt.Errorf("answer action on %s: answer is required", a.Target)
		}
	}
	for i, r := range a.Requires {
		if !ValidCondition(r.When) {
			return fmt.Errorf("%s action on %s: requirement %d: invalid condition %q", a.Kind, a.Target, i, r.When)
		}
		if r.Reject == "" {
			return fmt.Errorf("%s action on %s: requirement %d: reject message is required", a.Kind, a.Target, i)
		}
	}
	return nil
}

// Outcome classifies the result of a dispatch.
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeProgress  Outcome = "progress"
	OutcomeCompleted Outcome = "completed"
	OutcomeAlready   Outcome = "already"
	OutcomeMismatch  Outcome = "mismatch"
	OutcomeIgnored   Outcome = "ignored"
	OutcomePending   Outcome = "pending"
)

// Result is what one activation did.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Interaction is the puzzle:interacted payload.
type Interaction struct {
	LevelID string  `json:"level_id"`
	Source  string  `json:"source"`
	Kind    Kind    `json:"kind"`
	Target  string  `json:"target,omitempty"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// EffectStarted is the effect:started payload.
type EffectStarted struct {
	LevelID  string        `json:"level_id"`
	Source   string        `json:"source"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Win is the game:win payload.
type Win struct {
	LevelID string `json:"level_id"`
	Source  string `json:"source"`
}

const (
	defaultAlready  = "Already done."
	defaultMismatch = "That's not quite right. Try again."
	defaultPending  = "Not yet. Give it a moment."
	defaultReject   = "Something else must happen first."
	defaultPrompt   = "An answer is required."
)

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
