package puzzle

import (
	"testing"
	"time"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/inventory"
)

// recorder captures every message published on the watched topics.
type recorder struct {
	msgs []bus.Message
}

func newRecorder(b *bus.Bus, topics ...bus.Topic) *recorder {
	r := &recorder{}
	for _, t := range topics {
		b.Subscribe(t, func(m bus.Message) { r.msgs = append(r.msgs, m) })
	}
	return r
}

func (r *recorder) texts() []string {
	var out []string
	for _, m := range r.msgs {
		if m.Topic == bus.TopicShowMessage {
			out = append(out, bus.Text(m.Payload))
		}
	}
	return out
}

func (r *recorder) count(topic bus.Topic) int {
	n := 0
	for _, m := range r.msgs {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

func (r *recorder) last() string {
	texts := r.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// fakeControl records interactability changes.
type fakeControl struct {
	off map[string]bool
}

func (f *fakeControl) SetInteractable(name string, on bool) bool {
	if f.off == nil {
		f.off = make(map[string]bool)
	}
	f.off[name] = !on
	return true
}

func newEngine(t *testing.T, table *Table, c clock.Clock) (*Engine, *bus.Bus) {
	t.Helper()
	b := bus.New()
	return NewEngine(Config{LevelID: "test", Bus: b, Table: table, Clock: c}), b
}

func TestCounterNeverExceedsTarget(t *testing.T) {
	table := NewTable()
	if _, err := table.AddCounter("fragments", 3); err != nil {
		t.Fatal(err)
	}
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicShowMessage)

	collect := Action{
		Kind:     KindCollect,
		Target:   "fragments",
		Messages: Messages{Progress: "Fragment collected ({fragments.count}/{fragments.target})"},
	}
	for i := 0; i < 4; i++ {
		e.Dispatch("fragment", collect, "")
	}

	count, _ := table.Count("fragments")
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
	if !table.Truth("fragments", "completed") {
		t.Error("expected counter completed")
	}
	texts := rec.texts()
	if len(texts) != 3 {
		t.Fatalf("expected 3 messages (fourth collect is a no-op), got %v", texts)
	}
	if texts[2] != "Fragment collected (3/3)" {
		t.Errorf("unexpected message %q", texts[2])
	}
}

func TestCounterConsumeCountsSourceOnce(t *testing.T) {
	table := NewTable()
	table.AddCounter("gems", 2)
	ctrl := &fakeControl{}
	e := NewEngine(Config{Table: table, Control: ctrl, Bus: bus.New()})
	item := &inventory.Item{ID: "gem", Name: "Gem"}
	collect := Action{Kind: KindCollect, Target: "gems", Consume: true, Item: item}

	first := e.Dispatch("gem_a", collect, "")
	again := e.Dispatch("gem_a", collect, "")
	if first.Outcome != OutcomeProgress {
		t.Errorf("expected progress, got %s", first.Outcome)
	}
	if again.Outcome != OutcomeIgnored {
		t.Errorf("expected re-collect ignored, got %s", again.Outcome)
	}
	if !ctrl.off["gem_a"] {
		t.Error("expected consumed source to become non-interactable")
	}
	if res := e.Dispatch("gem_b", collect, ""); res.Outcome != OutcomeCompleted {
		t.Errorf("expected completed, got %s", res.Outcome)
	}
}

func TestCollectPublishesItem(t *testing.T) {
	table := NewTable()
	table.AddCounter("keys", 1)
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicCollectItem, bus.TopicShowMessage)

	e.Dispatch("key", Action{
		Kind:     KindCollect,
		Target:   "keys",
		Item:     &inventory.Item{ID: "golden_key", Name: "Golden Key"},
		Messages: Messages{Success: "You found a key."},
	}, "")

	if rec.count(bus.TopicCollectItem) != 1 {
		t.Fatalf("expected one collectItem, got %d", rec.count(bus.TopicCollectItem))
	}
	item, ok := rec.msgs[0].Payload.(inventory.Item)
	if !ok || item.ID != "golden_key" {
		t.Errorf("unexpected payload %#v", rec.msgs[0].Payload)
	}
}

func TestSequenceMatch(t *testing.T) {
	table := NewTable()
	table.AddSequence("colors", []string{"A", "B", "C"})
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicShowMessage)

	var last Result
	for _, tok := range []string{"A", "B", "C"} {
		last = e.Dispatch("crystal_"+tok, Action{
			Kind:     KindAlignSequence,
			Target:   "colors",
			Token:    tok,
			Messages: Messages{Success: "Aligned!"},
		}, "")
	}
	if last.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", last.Outcome)
	}
	if !table.Truth("colors", "completed") {
		t.Error("expected sequence completed")
	}
	if rec.last() != "Aligned!" {
		t.Errorf("expected success message, got %q", rec.last())
	}

	again := e.Dispatch("crystal_A", Action{Kind: KindAlignSequence, Target: "colors", Token: "A"}, "")
	if again.Outcome != OutcomeAlready {
		t.Errorf("expected completed sequence to stay closed, got %s", again.Outcome)
	}
}

func TestSequenceMismatchClears(t *testing.T) {
	table := NewTable()
	table.AddSequence("colors", []string{"A", "B", "C"})
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicShowMessage)

	for _, tok := range []string{"A", "C", "B"} {
		e.Dispatch("crystal", Action{Kind: KindAlignSequence, Target: "colors", Token: tok}, "")
	}
	if table.Truth("colors", "completed") {
		t.Fatal("mismatched sequence must not complete")
	}
	if got := table.Sequence("colors").Progress(); len(got) != 0 {
		t.Errorf("expected working sequence cleared, got %v", got)
	}
	if rec.last() != defaultMismatch {
		t.Errorf("expected try-again message, got %q", rec.last())
	}

	// The cleared sequence accepts a fresh attempt.
	for _, tok := range []string{"A", "B", "C"} {
		e.Dispatch("crystal", Action{Kind: KindAlignSequence, Target: "colors", Token: tok}, "")
	}
	if !table.Truth("colors", "completed") {
		t.Error("expected sequence to complete after retry")
	}
}

func TestSequenceComparesOnlyAtFullLength(t *testing.T) {
	table := NewTable()
	table.AddSequence("colors", []string{"A", "B", "C"})
	e, _ := newEngine(t, table, nil)

	res := e.Dispatch("crystal", Action{Kind: KindAlignSequence, Target: "colors", Token: "X"}, "")
	if res.Outcome != OutcomeProgress {
		t.Errorf("expected progress before full length, got %s", res.Outcome)
	}
	e.Dispatch("crystal", Action{Kind: KindAlignSequence, Target: "colors", Token: "B"}, "")
	if got := table.Sequence("colors").Progress(); len(got) != 2 {
		t.Errorf("expected two pending tokens, got %v", got)
	}
}

func TestGateRequiresPrerequisite(t *testing.T) {
	table := NewTable()
	table.AddCounter("fragments", 3)
	table.AddGate("crucible")
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicShowMessage)

	fill := Action{
		Kind:     KindActivateOnce,
		Target:   "crucible",
		Requires: []Requirement{{When: "fragments.completed", Reject: "You need {fragments.remaining} more star fragments."}},
		Messages: Messages{Success: "The crucible blazes.", Already: "The crucible is already filled."},
	}

	res := e.Dispatch("crucible", fill, "")
	if res.Outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", res.Outcome)
	}
	if rec.last() != "You need 3 more star fragments." {
		t.Errorf("unexpected rejection %q", rec.last())
	}
	if table.Truth("crucible", "completed") {
		t.Error("rejected activation must not change state")
	}

	for i := 0; i < 3; i++ {
		e.Dispatch("fragment", Action{Kind: KindCollect, Target: "fragments"}, "")
	}
	if res := e.Dispatch("crucible", fill, ""); res.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", res.Outcome)
	}
	res = e.Dispatch("crucible", fill, "")
	if res.Outcome != OutcomeAlready || rec.last() != "The crucible is already filled." {
		t.Errorf("expected already-done message, got %s %q", res.Outcome, rec.last())
	}
}

func TestRequirementsCheckedInOrder(t *testing.T) {
	table := NewTable()
	table.AddGate("anvil")
	table.AddGate("constellation")
	table.AddGate("hammer")
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicShowMessage)

	forge := Action{
		Kind:   KindActivateOnce,
		Target: "hammer",
		Requires: []Requirement{
			{When: "anvil.completed", Reject: "The anvil is cold."},
			{When: "constellation.completed", Reject: "The stars are not aligned."},
		},
	}
	e.Dispatch("hammer", forge, "")
	if rec.last() != "The anvil is cold." {
		t.Errorf("expected first requirement message, got %q", rec.last())
	}
	e.Dispatch("anvil", Action{Kind: KindActivateOnce, Target: "anvil"}, "")
	e.Dispatch("hammer", forge, "")
	if rec.last() != "The stars are not aligned." {
		t.Errorf("expected second requirement message, got %q", rec.last())
	}
}

func TestWinPublishedAfterMutation(t *testing.T) {
	table := NewTable()
	table.AddGate("door")
	e, b := newEngine(t, table, nil)

	var openAtWin bool
	b.Subscribe(bus.TopicGameWin, func(m bus.Message) {
		openAtWin = table.Truth("door", "completed")
	})
	var order []bus.Topic
	for _, topic := range []bus.Topic{bus.TopicShowMessage, bus.TopicGameWin, bus.TopicPuzzleInteracted} {
		topic := topic
		b.Subscribe(topic, func(bus.Message) { order = append(order, topic) })
	}

	e.Dispatch("door", Action{Kind: KindActivateOnce, Target: "door", Win: true, Messages: Messages{Success: "Open!"}}, "")
	if !openAtWin {
		t.Error("expected state mutated before game:win")
	}
	want := []bus.Topic{bus.TopicShowMessage, bus.TopicGameWin, bus.TopicPuzzleInteracted}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestTimedUnlock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	table := NewTable()
	table.AddGate("forge")
	table.AddGate("quench")
	e, b := newEngine(t, table, clk)
	rec := newRecorder(b, bus.TopicShowMessage)

	strike := Action{
		Kind:     KindTimedUnlock,
		Target:   "forge",
		Delay:    3 * time.Second,
		Messages: Messages{Success: "Forged.", Pending: "Still cooling.", Ready: "Cool enough to quench.", Already: "Done."},
	}
	quench := Action{
		Kind:     KindActivateOnce,
		Target:   "quench",
		Requires: []Requirement{{When: "forge.ready", Reject: "Nothing to quench yet."}},
	}

	e.Dispatch("hammer", strike, "")
	if res := e.Dispatch("hammer", strike, ""); res.Outcome != OutcomePending {
		t.Errorf("expected pending, got %s", res.Outcome)
	}
	if res := e.Dispatch("pool", quench, ""); res.Outcome != OutcomeRejected {
		t.Errorf("expected quench rejected before cool-down, got %s", res.Outcome)
	}

	clk.Advance(2 * time.Second)
	e.Tick()
	if table.Truth("forge", "ready") {
		t.Fatal("timer fired early")
	}

	clk.Advance(time.Second)
	e.Tick()
	if !table.Truth("forge", "ready") {
		t.Fatal("expected forge ready after delay")
	}
	if rec.last() != "Cool enough to quench." {
		t.Errorf("expected ready message, got %q", rec.last())
	}
	if res := e.Dispatch("hammer", strike, ""); res.Outcome != OutcomeAlready {
		t.Errorf("expected already, got %s", res.Outcome)
	}
	if res := e.Dispatch("pool", quench, ""); res.Outcome != OutcomeCompleted {
		t.Errorf("expected quench completed, got %s", res.Outcome)
	}
}

func TestTimerScale(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	table := NewTable()
	table.AddGate("forge")
	e := NewEngine(Config{Table: table, Clock: clk, TimerScale: 2})

	e.Dispatch("hammer", Action{Kind: KindTimedUnlock, Target: "forge", Delay: time.Second}, "")
	clk.Advance(1500 * time.Millisecond)
	e.Tick()
	if table.Truth("forge", "ready") {
		t.Error("scaled timer fired early")
	}
	clk.Advance(time.Second)
	e.Tick()
	if !table.Truth("forge", "ready") {
		t.Error("scaled timer did not fire")
	}
}

func TestDisposeCancelsTimers(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	table := NewTable()
	table.AddGate("forge")
	e, b := newEngine(t, table, clk)
	rec := newRecorder(b, bus.TopicShowMessage)

	e.Dispatch("hammer", Action{Kind: KindTimedUnlock, Target: "forge", Delay: time.Second, Messages: Messages{Ready: "ready"}}, "")
	if e.Scheduler().Pending() != 1 {
		t.Fatalf("expected one pending timer, got %d", e.Scheduler().Pending())
	}
	e.Dispose()
	clk.Advance(time.Minute)
	e.Tick()

	if table.Truth("forge", "ready") {
		t.Error("timer fired after dispose")
	}
	for _, text := range rec.texts() {
		if text == "ready" {
			t.Error("ready message published after dispose")
		}
	}
	if res := e.Dispatch("hammer", Action{Kind: KindActivateOnce, Target: "forge"}, ""); res.Outcome != OutcomeIgnored {
		t.Errorf("expected disposed engine to ignore dispatch, got %s", res.Outcome)
	}
}

func TestAnswer(t *testing.T) {
	table := NewTable()
	table.AddGate("riddle")
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicGameWin)

	riddle := Action{Kind: KindAnswer, Target: "riddle", Answer: "echo", Win: true}
	if res := e.Dispatch("sphinx", riddle, ""); res.Outcome != OutcomePending {
		t.Errorf("expected prompt, got %s", res.Outcome)
	}
	if res := e.Dispatch("sphinx", riddle, "shadow"); res.Outcome != OutcomeMismatch {
		t.Errorf("expected mismatch, got %s", res.Outcome)
	}
	if rec.count(bus.TopicGameWin) != 0 {
		t.Fatal("wrong answer must not win")
	}
	if res := e.Dispatch("sphinx", riddle, "  ECHO "); res.Outcome != OutcomeCompleted {
		t.Errorf("expected completed, got %s", res.Outcome)
	}
	if rec.count(bus.TopicGameWin) != 1 {
		t.Errorf("expected one win, got %d", rec.count(bus.TopicGameWin))
	}
}

func TestCompositeWin(t *testing.T) {
	table := NewTable()
	table.AddGate("hands")
	table.AddCounter("orbs", 2)
	table.AddComposite("aligned", "hands.completed && orbs.count >= 2", "Time stands still.", false)
	table.AddComposite("escape", "aligned.completed", "", true)
	e, b := newEngine(t, table, nil)
	rec := newRecorder(b, bus.TopicGameWin, bus.TopicShowMessage)

	e.Dispatch("hands", Action{Kind: KindActivateOnce, Target: "hands"}, "")
	e.Dispatch("orb", Action{Kind: KindCollect, Target: "orbs"}, "")
	if rec.count(bus.TopicGameWin) != 0 {
		t.Fatal("composite completed early")
	}
	e.Dispatch("orb", Action{Kind: KindCollect, Target: "orbs"}, "")
	if !table.Truth("aligned", "completed") || !table.Truth("escape", "completed") {
		t.Fatal("expected chained composites completed")
	}
	if rec.count(bus.TopicGameWin) != 1 {
		t.Errorf("expected one win, got %d", rec.count(bus.TopicGameWin))
	}
	if rec.last() != "Time stands still." {
		t.Errorf("expected composite message, got %q", rec.last())
	}
}

func TestEffectHook(t *testing.T) {
	table := NewTable()
	table.AddGate("anvil")
	var started []string
	b := bus.New()
	rec := newRecorder(b, bus.TopicEffectStarted)
	e := NewEngine(Config{Table: table, Bus: b, OnEffect: func(source string, fx Effect) {
		started = append(started, source+":"+fx.Name)
	}})

	e.Dispatch("anvil", Action{Kind: KindActivateOnce, Target: "anvil", Effect: &Effect{Name: "sparks", Duration: time.Second}}, "")
	if len(started) != 1 || started[0] != "anvil:sparks" {
		t.Errorf("unexpected effects %v", started)
	}
	if rec.count(bus.TopicEffectStarted) != 1 {
		t.Errorf("expected effect:started, got %d", rec.count(bus.TopicEffectStarted))
	}
}

func TestActionValidate(t *testing.T) {
	table := NewTable()
	table.AddCounter("fragments", 3)
	table.AddGate("door")

	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"none", Action{}, false},
		{"collect ok", Action{Kind: KindCollect, Target: "fragments"}, false},
		{"unknown kind", Action{Kind: "teleport", Target: "door"}, true},
		{"missing target", Action{Kind: KindActivateOnce}, true},
		{"unknown target", Action{Kind: KindActivateOnce, Target: "window"}, true},
		{"wrong element type", Action{Kind: KindCollect, Target: "door"}, true},
		{"timed without delay", Action{Kind: KindTimedUnlock, Target: "door"}, true},
		{"answer without answer", Action{Kind: KindAnswer, Target: "door"}, true},
		{"bad condition", Action{Kind: KindActivateOnce, Target: "door", Requires: []Requirement{{When: "fragments", Reject: "no"}}}, true},
		{"missing reject", Action{Kind: KindActivateOnce, Target: "door", Requires: []Requirement{{When: "fragments.completed"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate(table)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTableRejectsDuplicates(t *testing.T) {
	table := NewTable()
	if _, err := table.AddGate("door"); err != nil {
		t.Fatal(err)
	}
	if _, err := table.AddCounter("door", 2); err == nil {
		t.Error("expected duplicate id error")
	}
	if _, err := table.AddCounter("zero", 0); err == nil {
		t.Error("expected non-positive target error")
	}
}
