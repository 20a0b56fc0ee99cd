package puzzle

import (
	"reflect"
	"testing"
)

func TestEvalCondition(t *testing.T) {
	table := NewTable()
	table.AddCounter("fragments", 3)
	table.AddGate("anvil")
	table.AddGate("forge")
	table.Counter("fragments").Collect("a", false)
	table.Counter("fragments").Collect("b", false)
	table.Gate("anvil").Open()

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"anvil.completed", true},
		{"anvil.resolved", true},
		{"anvil.ready", true},
		{"forge.completed", false},
		{"!forge.completed", true},
		{"anvil.completed && forge.completed", false},
		{"anvil.completed || forge.completed", true},
		{"fragments.count >= 2", true},
		{"fragments.count == 3", false},
		{"fragments.count < 3", true},
		{"fragments.count > 2", false},
		{"fragments.count <= 2", true},
		{"fragments.completed", false},
		{"missing.completed", false},
		{"missing.count >= 0", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := EvalCondition(tt.expr, table); got != tt.want {
				t.Errorf("EvalCondition(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalConditionNilFacts(t *testing.T) {
	if !EvalCondition("", nil) {
		t.Error("empty condition must be true")
	}
	if EvalCondition("a.completed", nil) {
		t.Error("expected false without facts")
	}
}

func TestReferences(t *testing.T) {
	got := References("a.completed && !b.ready || c.count >= 2 && a.ready")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("References() = %v, want %v", got, want)
	}
}

func TestValidCondition(t *testing.T) {
	valid := []string{"", "a.completed", "!a.ready", "a.count >= 3 && b.resolved"}
	for _, expr := range valid {
		if !ValidCondition(expr) {
			t.Errorf("expected %q valid", expr)
		}
	}
	invalid := []string{"a", "a.open", "a.count >= x", "a.completed && "}
	for _, expr := range invalid {
		if ValidCondition(expr) {
			t.Errorf("expected %q invalid", expr)
		}
	}
}
