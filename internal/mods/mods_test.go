package mods

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPhaseOrder(t *testing.T) {
	want := []string{
		"settings", "settings-updates", "settings-final-fixes",
		"data", "data-updates", "data-final-fixes",
	}
	phases := Phases()
	if len(phases) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(phases))
	}
	for i, p := range phases {
		if p.String() != want[i] {
			t.Errorf("phase %d = %q, want %q", i, p.String(), want[i])
		}
	}
	if PhaseSettings.IsData() || PhaseSettingsFinalFixes.IsData() {
		t.Error("settings phases classified as data")
	}
	if !PhaseData.IsData() || !PhaseDataFinalFixes.IsData() {
		t.Error("data phases not classified as data")
	}
	if got := PhaseDataUpdates.Filename(); got != "data-updates.lua" {
		t.Errorf("Filename() = %q", got)
	}
}

func TestParseDependency(t *testing.T) {
	cases := []struct {
		in   string
		want Dependency
	}{
		{"base", Dependency{Kind: DependencyRequired, Name: "base"}},
		{"base >= 1.1.0", Dependency{Kind: DependencyRequired, Name: "base", Constraint: ">= 1.1.0"}},
		{"? quality", Dependency{Kind: DependencyOptional, Name: "quality"}},
		{"(?) angels-refining", Dependency{Kind: DependencyHiddenOptional, Name: "angels-refining"}},
		{"~ flib > 0.9.0", Dependency{Kind: DependencyLazy, Name: "flib", Constraint: "> 0.9.0"}},
		{"! conflicting-mod", Dependency{Kind: DependencyIncompatible, Name: "conflicting-mod"}},
		{"Krastorio 2 >= 1.3.0", Dependency{Kind: DependencyRequired, Name: "Krastorio 2", Constraint: ">= 1.3.0"}},
	}
	for _, tc := range cases {
		got, err := ParseDependency(tc.in)
		if err != nil {
			t.Errorf("ParseDependency(%q) failed: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("ParseDependency(%q) (-want +got):\n%s", tc.in, diff)
		}
	}

	for _, bad := range []string{"", "   ", "?"} {
		if _, err := ParseDependency(bad); err == nil {
			t.Errorf("ParseDependency(%q) should fail", bad)
		}
	}
}

func TestScopeExcludesIncompatible(t *testing.T) {
	deps, err := ParseDependencies([]string{"base", "? quality", "! enemy", "~ flib"})
	if err != nil {
		t.Fatal(err)
	}
	m := Mod{Name: "test", Dependencies: deps}

	scope := m.ScopeNames()
	want := []string{"base", "quality", "flib"}
	if diff := cmp.Diff(want, scope); diff != "" {
		t.Errorf("scope (-want +got):\n%s", diff)
	}

	order := m.OrderDependencies()
	wantOrder := []string{"base", "quality"}
	if diff := cmp.Diff(wantOrder, order); diff != "" {
		t.Errorf("order deps (-want +got):\n%s", diff)
	}
}

func TestLoadOrder(t *testing.T) {
	mustDeps := func(entries ...string) []Dependency {
		deps, err := ParseDependencies(entries)
		if err != nil {
			t.Fatal(err)
		}
		return deps
	}

	list := []Mod{
		{Name: "zz-addon", Dependencies: mustDeps("alpha")},
		{Name: "alpha", Dependencies: mustDeps("base")},
		{Name: "base"},
		{Name: "standalone"},
	}

	ordered, err := LoadOrder(list)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(ordered))
	for i, m := range ordered {
		names[i] = m.Name
	}
	want := []string{"base", "alpha", "standalone", "zz-addon"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("load order (-want +got):\n%s", diff)
	}

	// Determinism: same input, same order, every time.
	for i := 0; i < 5; i++ {
		again, err := LoadOrder(list)
		if err != nil {
			t.Fatal(err)
		}
		for i := range again {
			if again[i].Name != ordered[i].Name {
				t.Fatalf("load order not deterministic: %v", again)
			}
		}
	}
}

func TestLoadOrderCycle(t *testing.T) {
	mustDeps := func(entries ...string) []Dependency {
		deps, _ := ParseDependencies(entries)
		return deps
	}
	_, err := LoadOrder([]Mod{
		{Name: "a", Dependencies: mustDeps("b")},
		{Name: "b", Dependencies: mustDeps("a")},
	})
	if err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestMemSource(t *testing.T) {
	src := MemSource{}.
		Add("base", "data.lua", "-- base data").
		Add("base", "lib/util.lua", "return {}")

	script, ok, err := src.Script("base", PhaseData)
	if err != nil || !ok {
		t.Fatalf("Script failed: ok=%v err=%v", ok, err)
	}
	if script != "-- base data" {
		t.Errorf("unexpected script: %q", script)
	}

	if _, ok, _ := src.Script("base", PhaseSettings); ok {
		t.Error("absent phase script reported present")
	}
	if _, ok, _ := src.Script("ghost", PhaseData); ok {
		t.Error("unknown mod reported present")
	}

	if _, err := src.ReadFile("base", "missing.lua"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := src.ReadFile("ghost", "data.lua"); !errors.Is(err, ErrUnknownMod) {
		t.Errorf("expected ErrUnknownMod, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeMod := func(folder, info string, files map[string]string) {
		dir := filepath.Join(root, folder)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "info.json"), []byte(info), 0644); err != nil {
			t.Fatal(err)
		}
		for name, content := range files {
			path := filepath.Join(dir, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
		}
	}

	writeMod("base_1.1.0", `{"name":"base","version":"1.1.0","dependencies":[]}`, map[string]string{
		"data.lua": "-- base",
	})
	writeMod("alpha", `{"name":"alpha","version":"0.2.0","dependencies":["base >= 1.0.0"]}`, map[string]string{
		"data.lua":       "-- alpha",
		"parts/core.lua": "return 1",
	})
	// A stray folder without info.json is skipped, not an error.
	if err := os.MkdirAll(filepath.Join(root, "not-a-mod"), 0755); err != nil {
		t.Fatal(err)
	}

	found, src, err := LoadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 mods, got %d", len(found))
	}
	if found[0].Name != "alpha" || found[1].Name != "base" {
		t.Errorf("mods not sorted by name: %v", found)
	}
	if found[0].Dependencies[0].Name != "base" {
		t.Errorf("alpha dependencies not parsed: %+v", found[0].Dependencies)
	}

	content, err := src.ReadFile("alpha", "parts/core.lua")
	if err != nil || content != "return 1" {
		t.Errorf("ReadFile failed: %q %v", content, err)
	}

	if _, err := src.ReadFile("alpha", "../base_1.1.0/data.lua"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("path escape not rejected: %v", err)
	}

	script, ok, err := src.Script("base", PhaseData)
	if err != nil || !ok || script != "-- base" {
		t.Errorf("Script(base, data) = %q %v %v", script, ok, err)
	}
	if _, ok, _ := src.Script("base", PhaseSettings); ok {
		t.Error("missing settings script reported present")
	}
}
