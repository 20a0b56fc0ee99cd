package registry

import (
	"errors"
	"testing"

	"github.com/AaronLay10/holoquest/internal/puzzle"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	id, err := r.Register(Descriptor{
		Name:         "anvil",
		Kind:         KindPuzzle,
		Interactable: true,
		Action:       puzzle.Action{Kind: puzzle.KindActivateOnce, Target: "anvil"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first id 1, got %d", id)
	}

	obj, ok := r.Lookup("anvil")
	if !ok {
		t.Fatal("expected object, got none")
	}
	if obj.Kind != KindPuzzle || obj.Action.Target != "anvil" {
		t.Errorf("unexpected object %+v", obj)
	}
	byID, ok := r.Get(id)
	if !ok || byID.Name != "anvil" {
		t.Errorf("Get(%d) = %+v, %v", id, byID, ok)
	}
	if _, ok := r.Get(42); ok {
		t.Error("expected unknown id to miss")
	}
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	r := New()
	if _, err := r.Register(Descriptor{Name: "gem", Kind: KindPuzzlePiece}); err != nil {
		t.Fatal(err)
	}
	_, err := r.Register(Descriptor{Name: "gem", Kind: KindPuzzlePiece})
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 object, got %d", r.Len())
	}
}

func TestRegistry_RejectsInvalidDescriptors(t *testing.T) {
	r := New()
	if _, err := r.Register(Descriptor{Kind: KindPuzzle}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := r.Register(Descriptor{Name: "x", Kind: "door"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRegistry_SealAndClear(t *testing.T) {
	r := New()
	r.Register(Descriptor{Name: "a", Kind: KindPuzzle})
	r.Seal()
	if _, err := r.Register(Descriptor{Name: "b", Kind: KindPuzzle}); !errors.Is(err, ErrSealed) {
		t.Errorf("expected ErrSealed, got %v", err)
	}

	r.Clear()
	if r.Len() != 0 || len(r.All()) != 0 {
		t.Error("expected empty registry after Clear")
	}
	if _, ok := r.Lookup("a"); ok {
		t.Error("expected cleared object to be gone")
	}
	if _, err := r.Register(Descriptor{Name: "c", Kind: KindPuzzle}); !errors.Is(err, ErrSealed) {
		t.Errorf("expected cleared registry to refuse registration, got %v", err)
	}
}

func TestRegistry_AllKeepsRegistrationOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"c", "a", "b"} {
		r.Register(Descriptor{Name: name, Kind: KindPuzzlePiece})
	}
	all := r.All()
	if len(all) != 3 || all[0].Name != "c" || all[1].Name != "a" || all[2].Name != "b" {
		t.Errorf("unexpected order %+v", all)
	}
}

func TestRegistry_HoverIsIdempotent(t *testing.T) {
	r := New()
	hovers, leaves := 0, 0
	r.Register(Descriptor{
		Name:         "orb",
		Kind:         KindPuzzlePiece,
		Interactable: true,
		OnHover:      func(Object) { hovers++ },
		OnUnhover:    func(Object) { leaves++ },
	})

	if !r.Hover("orb") {
		t.Error("first hover should change state")
	}
	if r.Hover("orb") {
		t.Error("second hover should be a no-op")
	}
	obj, _ := r.Lookup("orb")
	if !obj.Highlighted {
		t.Error("expected highlighted")
	}
	if !r.Unhover("orb") || r.Unhover("orb") {
		t.Error("unhover should change state exactly once")
	}
	if hovers != 1 || leaves != 1 {
		t.Errorf("expected one hook call each, got hover=%d unhover=%d", hovers, leaves)
	}
}

func TestRegistry_HoverSkipsNonInteractable(t *testing.T) {
	r := New()
	r.Register(Descriptor{Name: "wall", Kind: KindPuzzle})
	if r.Hover("wall") {
		t.Error("non-interactable object must not highlight")
	}
	if r.Hover("missing") {
		t.Error("unknown object must not highlight")
	}
}

func TestRegistry_SetInteractableClearsHighlight(t *testing.T) {
	r := New()
	left := false
	r.Register(Descriptor{Name: "gem", Kind: KindPuzzlePiece, Interactable: true, OnUnhover: func(Object) { left = true }})
	r.Hover("gem")

	if !r.SetInteractable("gem", false) {
		t.Fatal("expected change")
	}
	obj, _ := r.Lookup("gem")
	if obj.Interactable || obj.Highlighted {
		t.Errorf("expected non-interactable and unhighlighted, got %+v", obj)
	}
	if !left {
		t.Error("expected unhover hook to run")
	}
	if r.SetInteractable("gem", false) {
		t.Error("second disable should report no change")
	}
	if r.SetInteractable("missing", true) {
		t.Error("unknown object should report false")
	}
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	r := New()
	r.Register(Descriptor{Name: "gem", Kind: KindPuzzlePiece, Interactable: true})
	all := r.All()
	all[0].Interactable = false
	obj, _ := r.Lookup("gem")
	if !obj.Interactable {
		t.Error("mutating a snapshot changed the registry")
	}
}
