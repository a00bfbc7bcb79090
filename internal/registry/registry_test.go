package registry

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestExtendAndGet(t *testing.T) {
	r := New()
	r.Extend("recipe", "iron-plate", Table{"energy": Number(3.2)})

	v, ok := r.Get("recipe", "iron-plate")
	if !ok {
		t.Fatal("expected recipe/iron-plate to exist")
	}
	tbl, ok := v.(Table)
	if !ok {
		t.Fatalf("expected a table value, got %T", v)
	}
	if tbl["energy"] != Number(3.2) {
		t.Errorf("expected energy 3.2, got %v", tbl["energy"])
	}

	if _, ok := r.Get("recipe", "copper-plate"); ok {
		t.Error("expected copper-plate to be absent")
	}
	if _, ok := r.Get("item", "iron-plate"); ok {
		t.Error("expected item type to be absent")
	}
}

func TestExtendOverwriteIsSilentLastWriteWins(t *testing.T) {
	r := New()
	r.Extend("recipe", "iron-plate", String("first"))
	r.Extend("recipe", "iron-plate", String("second"))

	v, _ := r.Get("recipe", "iron-plate")
	if v != String("second") {
		t.Errorf("expected the later write to win, got %v", v)
	}
	if got := len(r.Keys("recipe")); got != 1 {
		t.Errorf("expected one entry after overwrite, got %d", got)
	}
}

func TestKeysSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Extend("item", name, Null{})
	}
	keys := r.Keys("item")
	want := []string{"alpha", "mid", "zeta"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestRemoveDropsEmptyType(t *testing.T) {
	r := New()
	r.Extend("item", "wood", Null{})

	if !r.Remove("item", "wood") {
		t.Fatal("expected removal of an existing entry to report true")
	}
	if r.Remove("item", "wood") {
		t.Error("expected removal of a missing entry to report false")
	}
	if types := r.Types(); len(types) != 0 {
		t.Errorf("expected no types after removing the last entry, got %v", types)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	r := New()
	r.Extend("recipe", "iron-plate", Table{"ingredients": Array{String("iron-ore")}})

	snap := r.Snapshot()

	// Mutate the live registry every way possible.
	r.Extend("recipe", "iron-plate", String("overwritten"))
	r.Extend("recipe", "copper-plate", Null{})
	r.Remove("recipe", "iron-plate")

	v, ok := snap.Get("recipe", "iron-plate")
	if !ok {
		t.Fatal("snapshot lost an entry after live mutation")
	}
	tbl, ok := v.(Table)
	if !ok {
		t.Fatalf("snapshot value changed type: %T", v)
	}
	arr, ok := tbl["ingredients"].(Array)
	if !ok || len(arr) != 1 || arr[0] != String("iron-ore") {
		t.Errorf("snapshot value mutated: %v", tbl["ingredients"])
	}
	if _, ok := snap.Get("recipe", "copper-plate"); ok {
		t.Error("snapshot sees entries added after it was taken")
	}
}

func TestRestoreRollsBack(t *testing.T) {
	r := New()
	r.Extend("item", "wood", String("original"))
	snap := r.Snapshot()

	r.Extend("item", "wood", String("mutated"))
	r.Extend("item", "stone", Null{})
	r.Restore(snap)

	v, _ := r.Get("item", "wood")
	if v != String("original") {
		t.Errorf("expected restore to roll back the overwrite, got %v", v)
	}
	if _, ok := r.Get("item", "stone"); ok {
		t.Error("expected restore to drop entries added after the snapshot")
	}

	// The registry must not alias the snapshot after Restore.
	r.Extend("item", "wood", String("again"))
	if v, _ := snap.Get("item", "wood"); v != String("original") {
		t.Errorf("snapshot mutated through restored registry: %v", v)
	}
}

func TestMarshalDeterminism(t *testing.T) {
	build := func() *Registry {
		r := New()
		r.Extend("recipe", "b", Table{"x": Number(1), "y": Number(2)})
		r.Extend("recipe", "a", Array{Bool(true), Null{}})
		r.Extend("item", "c", String("s"))
		return r
	}

	first, err := json.Marshal(build())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	second, err := json.Marshal(build())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("identical registries marshal differently:\n%s\n%s", first, second)
	}
}

func TestValueEqual(t *testing.T) {
	a := Table{"n": Number(1), "arr": Array{String("x"), Null{}}}
	b := Table{"n": Number(1), "arr": Array{String("x"), Null{}}}
	if !a.Equal(b) {
		t.Error("structurally identical tables reported unequal")
	}
	c := Table{"n": Number(1), "arr": Array{String("y"), Null{}}}
	if a.Equal(c) {
		t.Error("different tables reported equal")
	}
	if a.Equal(Number(1)) {
		t.Error("table equal to number")
	}
}

func TestNumberMarshalIntegral(t *testing.T) {
	raw, err := json.Marshal(Number(42))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != "42" {
		t.Errorf("integral number marshaled as %s", raw)
	}
	raw, _ = json.Marshal(Number(1.5))
	if string(raw) != "1.5" {
		t.Errorf("fractional number marshaled as %s", raw)
	}
}
