package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/game"
)

// DisplayState is the retained <prefix>/display/state payload.
type DisplayState struct {
	State       string    `json:"state"`
	LevelID     string    `json:"level_id,omitempty"`
	NextLevelID string    `json:"next_level_id,omitempty"`
	Pointer     bool      `json:"pointer_captured"`
	Updated     time.Time `json:"updated"`
}

// DisplayMessage is the <prefix>/display/message payload.
type DisplayMessage struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Display presents the game on the room's displays. It is a game.Presenter
// for messages, pause and win, and follows inventory and level changes
// through a bus tap.
type Display struct {
	out    *Outbox
	topics Topics
	now    func() time.Time

	mu    sync.Mutex
	state DisplayState
}

var _ game.Presenter = (*Display)(nil)

// NewDisplay creates a display publishing through out.
func NewDisplay(out *Outbox, topics Topics) *Display {
	return &Display{
		out:    out,
		topics: topics,
		now:    time.Now,
		state:  DisplayState{State: "idle"},
	}
}

func (d *Display) send(kind string, retained bool, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	d.out.Send(d.topics.Display(kind), retained, b)
}

func (d *Display) ShowMessage(text string) {
	if text == "" {
		return
	}
	d.send("message", false, DisplayMessage{Text: text, At: d.now().UTC()})
}

func (d *Display) setState(fn func(*DisplayState)) {
	d.mu.Lock()
	fn(&d.state)
	d.state.Updated = d.now().UTC()
	st := d.state
	d.mu.Unlock()
	d.send("state", true, st)
}

func (d *Display) ShowPause() {
	d.setState(func(s *DisplayState) { s.State = "paused" })
}

func (d *Display) HidePause() {
	d.setState(func(s *DisplayState) { s.State = "running" })
}

func (d *Display) ShowWin(info game.WinInfo) {
	d.setState(func(s *DisplayState) {
		s.State = "won"
		s.LevelID = info.LevelID
		s.NextLevelID = info.NextLevelID
	})
}

func (d *Display) SetPointerCapture(on bool) {
	d.mu.Lock()
	d.state.Pointer = on
	d.mu.Unlock()
}

func (d *Display) Update(time.Duration) {}

// State returns the last published state.
func (d *Display) State() DisplayState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Follow consumes a bus tap until ctx is done or the tap is closed.
func (d *Display) Follow(ctx context.Context, tap bus.Tap) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-tap:
			if !ok {
				return nil
			}
			d.observe(m)
		}
	}
}

func (d *Display) observe(m bus.Message) {
	switch m.Topic {
	case bus.TopicInventoryUpdated:
		d.send("inventory", true, m.Payload)
	case bus.TopicLevelReset:
		ev, _ := m.Payload.(game.StageEvent)
		d.setState(func(s *DisplayState) {
			s.State = "running"
			s.LevelID = ev.LevelID
			s.NextLevelID = ""
		})
	case bus.TopicStageStarted:
		ev, _ := m.Payload.(game.StageEvent)
		d.setState(func(s *DisplayState) {
			s.State = "loading"
			s.LevelID = ev.LevelID
		})
	case bus.TopicGameRestart:
		d.setState(func(s *DisplayState) {
			s.State = "idle"
			s.LevelID = ""
			s.NextLevelID = ""
		})
	}
}
