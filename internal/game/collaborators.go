package game

import (
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/level"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/registry"
)

// Probe is the interaction probe: it is handed the current level's objects
// and turns player input into Activate/Hover calls.
type Probe interface {
	Attach(objects []registry.Object)
	Update(dt time.Duration)
	Release()
}

// WinInfo is what the win presentation needs.
type WinInfo struct {
	LevelID     string `json:"level_id"`
	NextLevelID string `json:"next_level_id,omitempty"`
}

// Presenter is the presentation layer.
type Presenter interface {
	ShowMessage(text string)
	ShowPause()
	HidePause()
	ShowWin(info WinInfo)
	SetPointerCapture(on bool)
	Update(dt time.Duration)
}

// Companion is a per-level helper. It is released with its level.
type Companion interface {
	Update(dt time.Duration)
	Release()
}

// CompanionFactory creates the companion for a freshly initialized level.
// Subscriptions it makes must go through subs so they are revoked with the
// level wiring.
type CompanionFactory func(b *bus.Bus, lvl level.Level, subs *bus.SubscriptionSet) Companion

// SkillSource supplies the difficulty tier for the next level. Zero means
// no opinion.
type SkillSource interface {
	Tier() int
}

// NopProbe ignores everything.
type NopProbe struct{}

func (NopProbe) Attach([]registry.Object) {}
func (NopProbe) Update(time.Duration)     {}
func (NopProbe) Release()                 {}

// LogPresenter writes presentation calls to the log.
type LogPresenter struct {
	Log *logging.Logger
}

func (p LogPresenter) ShowMessage(text string) {
	p.Log.Info("presenter.message", text, nil)
}

func (p LogPresenter) ShowPause() {
	p.Log.Info("presenter.pause", "game paused", nil)
}

func (p LogPresenter) HidePause() {
	p.Log.Info("presenter.resume", "game resumed", nil)
}

func (p LogPresenter) ShowWin(info WinInfo) {
	p.Log.Info("presenter.win", "level complete", map[string]interface{}{
		"level_id":      info.LevelID,
		"next_level_id": info.NextLevelID,
	})
}

func (p LogPresenter) SetPointerCapture(on bool) {
	p.Log.Debug("presenter.pointer", "pointer capture changed", map[string]interface{}{"captured": on})
}

func (LogPresenter) Update(time.Duration) {}

// Presenters fans every call out to each presenter in order.
type Presenters []Presenter

func (ps Presenters) ShowMessage(text string) {
	for _, p := range ps {
		p.ShowMessage(text)
	}
}

func (ps Presenters) ShowPause() {
	for _, p := range ps {
		p.ShowPause()
	}
}

func (ps Presenters) HidePause() {
	for _, p := range ps {
		p.HidePause()
	}
}

func (ps Presenters) ShowWin(info WinInfo) {
	for _, p := range ps {
		p.ShowWin(info)
	}
}

func (ps Presenters) SetPointerCapture(on bool) {
	for _, p := range ps {
		p.SetPointerCapture(on)
	}
}

func (ps Presenters) Update(dt time.Duration) {
	for _, p := range ps {
		p.Update(dt)
	}
}
