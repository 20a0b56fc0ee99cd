package skill

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/storage"
)

func TestTierFromCompletionTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		took time.Duration
		want int
	}{
		{"fast", 2 * time.Minute, TierExpert},
		{"boundary fast", 4 * time.Minute, TierExpert},
		{"middle", 8 * time.Minute, TierStandard},
		{"slow", 20 * time.Minute, TierNovice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(Options{})
			tr.Started("vault", base)
			tr.Completed("vault", base.Add(tt.took))
			if got := tr.Tier(); got != tt.want {
				t.Errorf("got tier %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNoHistoryHasNoOpinion(t *testing.T) {
	tr := New(Options{})
	if tr.Tier() != TierNone {
		t.Errorf("expected TierNone, got %d", tr.Tier())
	}
	tr.Completed("vault", time.Now())
	if len(tr.Completions()) != 0 {
		t.Error("completion without a start must be ignored")
	}
}

func TestWindowAveragesRecentLevels(t *testing.T) {
	base := time.Now()
	tr := New(Options{Window: 2})
	tr.Started("a", base)
	tr.Completed("a", base.Add(30*time.Minute))
	tr.Started("b", base)
	tr.Completed("b", base.Add(time.Minute))
	tr.Started("c", base)
	tr.Completed("c", base.Add(time.Minute))
	if tr.Tier() != TierExpert {
		t.Errorf("expected the slow first level to fall out of the window, got %d", tr.Tier())
	}
}

func TestAttachUsesGameClock(t *testing.T) {
	manual := clock.NewManual(time.Unix(0, 0))
	gameClock := clock.NewPausable(manual)
	b := bus.New()
	tr := New(Options{Clock: gameClock})
	tr.Attach(b)

	b.Publish(bus.TopicStageStarted, game.StageEvent{LevelID: "vault"})
	manual.Advance(time.Minute)
	gameClock.Pause()
	manual.Advance(time.Hour)
	gameClock.Resume()
	manual.Advance(time.Minute)
	b.Publish(bus.TopicStageCompleted, game.StageEvent{LevelID: "vault"})

	got := tr.Completions()
	if len(got) != 1 || got[0].Duration != 2*time.Minute {
		t.Fatalf("expected 2m of play time, got %+v", got)
	}

	tr.Detach()
	b.Publish(bus.TopicStageStarted, game.StageEvent{LevelID: "forge"})
	b.Publish(bus.TopicStageCompleted, game.StageEvent{LevelID: "forge"})
	if len(tr.Completions()) != 1 {
		t.Error("detached tracker must not record")
	}
}

type fakeQuerier struct {
	rows []storage.Row
	err  error
}

func (f *fakeQuerier) Query(limit int) ([]storage.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]storage.Row, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func row(ts time.Time, topic bus.Topic, levelID string) storage.Row {
	payload, _ := json.Marshal(game.StageEvent{LevelID: levelID})
	return storage.Row{Timestamp: ts, Topic: string(topic), Payload: payload}
}

func TestRestoreFromJournal(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	// Newest first, as the stores return them.
	q := &fakeQuerier{rows: []storage.Row{
		row(base.Add(40*time.Minute), bus.TopicStageStarted, "clocktower"),
		{Timestamp: base.Add(35 * time.Minute), Topic: "showMessage", Payload: []byte(`"hello"`)},
		row(base.Add(30*time.Minute), bus.TopicStageCompleted, "forge"),
		row(base.Add(27*time.Minute), bus.TopicStageStarted, "forge"),
		row(base.Add(25*time.Minute), bus.TopicStageCompleted, "vault"),
		row(base.Add(22*time.Minute), bus.TopicStageStarted, "vault"),
	}}

	tr := New(Options{})
	n, err := tr.Restore(q, 0)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 rows, got %d", n)
	}
	got := tr.Completions()
	if len(got) != 2 || got[0].LevelID != "vault" || got[1].Duration != 3*time.Minute {
		t.Fatalf("unexpected completions %+v", got)
	}
	if tr.Tier() != TierExpert {
		t.Errorf("expected expert tier, got %d", tr.Tier())
	}

	// The open clocktower attempt must not survive the restart.
	tr.Completed("clocktower", base.Add(41*time.Minute))
	if len(tr.Completions()) != 2 {
		t.Error("interrupted attempt was completed")
	}
}

func TestRestorePrefersJournaledPlayTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	completed := func(ts time.Time, levelID string, d time.Duration) storage.Row {
		payload, _ := json.Marshal(game.StageEvent{LevelID: levelID, Duration: d})
		return storage.Row{Timestamp: ts, Topic: string(bus.TopicStageCompleted), Payload: payload}
	}
	q := &fakeQuerier{rows: []storage.Row{
		// 30 minutes on the wall, 20 of them paused.
		completed(base.Add(60*time.Minute), "forge", 10*time.Minute),
		row(base.Add(30*time.Minute), bus.TopicStageStarted, "forge"),
		// Its stageStarted fell outside the restore window.
		completed(base.Add(25*time.Minute), "vault", 2*time.Minute),
	}}

	tr := New(Options{})
	if _, err := tr.Restore(q, 0); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got := tr.Completions()
	if len(got) != 2 {
		t.Fatalf("expected 2 completions, got %+v", got)
	}
	if got[0].LevelID != "vault" || got[0].Duration != 2*time.Minute {
		t.Errorf("unexpected vault completion %+v", got[0])
	}
	if got[1].LevelID != "forge" || got[1].Duration != 10*time.Minute {
		t.Errorf("expected forge play time without the pause, got %+v", got[1])
	}
	if tr.Tier() != TierStandard {
		t.Errorf("expected standard tier, got %d", tr.Tier())
	}
}

func TestRestoreEdgeCases(t *testing.T) {
	tr := New(Options{})
	if n, err := tr.Restore(nil, 10); n != 0 || err != nil {
		t.Errorf("nil querier: %d %v", n, err)
	}
	boom := errors.New("db down")
	if _, err := tr.Restore(&fakeQuerier{err: boom}, 10); !errors.Is(err, boom) {
		t.Errorf("expected query error, got %v", err)
	}
	if n, err := tr.Restore(&fakeQuerier{}, 10); n != 0 || err != nil {
		t.Errorf("empty journal: %d %v", n, err)
	}
}

var _ game.SkillSource = (*Tracker)(nil)
