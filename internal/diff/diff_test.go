package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/modforge/datastage/internal/registry"
)

func TestComputeAddedRemoved(t *testing.T) {
	before := registry.New()
	before.Extend("recipe", "iron-plate", registry.Null{})
	before.Extend("recipe", "doomed", registry.Null{})
	before.Extend("item", "wood", registry.Null{})

	after := before.Snapshot()
	after.Extend("recipe", "copper-plate", registry.Null{})
	after.Extend("fluid", "water", registry.Null{})
	after.Remove("recipe", "doomed")

	rec := Compute(before, after)

	want := Record{
		Added: map[string][]string{
			"recipe": {"copper-plate"},
			"fluid":  {"water"},
		},
		Removed: map[string][]string{
			"recipe": {"doomed"},
		},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("unexpected record (-want +got):\n%s", diff)
	}
}

// An overwrite with a different value is classified as neither added
// nor removed: presence is the only thing the engine compares.
func TestComputeIgnoresValueChanges(t *testing.T) {
	before := registry.New()
	before.Extend("recipe", "iron-plate", registry.String("old"))

	after := registry.New()
	after.Extend("recipe", "iron-plate", registry.String("new"))

	rec := Compute(before, after)
	if !rec.Empty() {
		t.Errorf("value-only change produced a non-empty record: %+v", rec)
	}
	if len(rec.Changed) != 0 {
		t.Errorf("changed classification is never populated, got %v", rec.Changed)
	}
}

func TestComputeEmptySnapshots(t *testing.T) {
	rec := Compute(registry.New(), registry.New())
	if !rec.Empty() {
		t.Errorf("expected an empty record, got %+v", rec)
	}
}

func TestHistoryAttribution(t *testing.T) {
	h := NewHistory()
	h.Apply("base", Record{Added: map[string][]string{"recipe": {"iron-plate"}}})
	h.Apply("alpha", Record{Added: map[string][]string{"recipe": {"copper-plate"}}})

	if mod, _ := h.Creator("recipe", "iron-plate"); mod != "base" {
		t.Errorf("iron-plate attributed to %q, want base", mod)
	}
	if mod, _ := h.Creator("recipe", "copper-plate"); mod != "alpha" {
		t.Errorf("copper-plate attributed to %q, want alpha", mod)
	}
}

func TestHistoryRemovalDropsAttribution(t *testing.T) {
	h := NewHistory()
	h.Apply("base", Record{Added: map[string][]string{"recipe": {"iron-plate"}}})
	h.Apply("cleanup", Record{Removed: map[string][]string{"recipe": {"iron-plate"}}})

	if _, ok := h.Creator("recipe", "iron-plate"); ok {
		t.Error("removed prototype still attributed")
	}
	if _, ok := h["recipe"]; ok {
		t.Error("emptied type bucket not dropped")
	}
}

// A later mod re-adding a removed name claims the attribution.
func TestHistoryReAdd(t *testing.T) {
	h := NewHistory()
	h.Apply("base", Record{Added: map[string][]string{"item": {"wood"}}})
	h.Apply("rework", Record{
		Removed: map[string][]string{"item": {"wood"}},
	})
	h.Apply("rework", Record{
		Added: map[string][]string{"item": {"wood"}},
	})

	if mod, _ := h.Creator("item", "wood"); mod != "rework" {
		t.Errorf("re-added prototype attributed to %q, want rework", mod)
	}
}
