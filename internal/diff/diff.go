// Package diff computes incremental structural diffs of the prototype
// registry around each mod's script execution, and folds them into a
// per-prototype creator attribution.
package diff

import "github.com/modforge/datastage/internal/registry"

// Record holds the prototype names one script execution added to or
// removed from the registry, keyed by prototype type. Name lists are
// sorted.
//
// Changed is recognized as a classification but is never populated: the
// engine classifies presence only and does not compare values for names
// present on both sides. An entry overwritten with a different value
// therefore appears in neither Added nor Removed.
type Record struct {
	Added   map[string][]string `json:"added"`
	Removed map[string][]string `json:"removed"`
	Changed map[string][]string `json:"changed,omitempty"`
}

// Compute diffs two registry snapshots. For every prototype type present
// in either snapshot, Added holds the names only in after and Removed
// the names only in before.
func Compute(before, after *registry.Registry) Record {
	rec := Record{
		Added:   make(map[string][]string),
		Removed: make(map[string][]string),
	}

	for _, typ := range after.Types() {
		var added []string
		for _, name := range after.Keys(typ) {
			if _, ok := before.Get(typ, name); !ok {
				added = append(added, name)
			}
		}
		if len(added) > 0 {
			rec.Added[typ] = added
		}
	}

	for _, typ := range before.Types() {
		var removed []string
		for _, name := range before.Keys(typ) {
			if _, ok := after.Get(typ, name); !ok {
				removed = append(removed, name)
			}
		}
		if len(removed) > 0 {
			rec.Removed[typ] = removed
		}
	}

	return rec
}

// Empty reports whether the record carries no additions or removals.
func (r Record) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// History maps prototype type -> prototype name -> the mod that most
// recently introduced it. It answers "which mod defines entry X" for
// consumers resolving bare names from blueprint strings.
type History map[string]map[string]string

// NewHistory creates an empty attribution history.
func NewHistory() History {
	return make(History)
}

// Apply folds one mod's diff record into the history. Additions claim
// the name for the mod, removals drop the attribution. A type bucket
// emptied by removals is deleted.
func (h History) Apply(mod string, rec Record) {
	for typ, names := range rec.Added {
		bucket, ok := h[typ]
		if !ok {
			bucket = make(map[string]string)
			h[typ] = bucket
		}
		for _, name := range names {
			bucket[name] = mod
		}
	}

	for typ, names := range rec.Removed {
		bucket, ok := h[typ]
		if !ok {
			continue
		}
		for _, name := range names {
			delete(bucket, name)
		}
		if len(bucket) == 0 {
			delete(h, typ)
		}
	}
}

// Creator returns the mod attributed with defining (typ, name).
func (h History) Creator(typ, name string) (string, bool) {
	mod, ok := h[typ][name]
	return mod, ok
}
