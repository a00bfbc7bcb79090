package registry

import (
	"encoding/json"
	"sort"
)

// Registry is the shared prototype namespace: prototype type name to
// prototype name to value. One Registry lives for exactly one scheduler
// run; scripts mutate it through the host API bound into their sandbox.
//
// The Registry is not safe for concurrent use. The lifecycle is strictly
// sequential and only the single in-flight sandbox touches it, so no
// locking is needed or provided.
type Registry struct {
	raw map[string]map[string]Value
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{raw: make(map[string]map[string]Value)}
}

// Extend inserts or overwrites the (typ, name) entry. Overwriting an
// existing entry is silent last-write-wins; later mods replacing earlier
// mods' prototypes is normal, not an error.
func (r *Registry) Extend(typ, name string, value Value) {
	names, ok := r.raw[typ]
	if !ok {
		names = make(map[string]Value)
		r.raw[typ] = names
	}
	names[name] = value
}

// Get returns the value stored under (typ, name), if any.
func (r *Registry) Get(typ, name string) (Value, bool) {
	v, ok := r.raw[typ][name]
	return v, ok
}

// Remove deletes (typ, name), reporting whether it existed. An emptied
// type bucket is dropped so Types never reports hollow types.
func (r *Registry) Remove(typ, name string) bool {
	names, ok := r.raw[typ]
	if !ok {
		return false
	}
	if _, ok := names[name]; !ok {
		return false
	}
	delete(names, name)
	if len(names) == 0 {
		delete(r.raw, typ)
	}
	return true
}

// Keys returns the sorted prototype names registered under typ.
func (r *Registry) Keys(typ string) []string {
	names := r.raw[typ]
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Types returns the sorted prototype type names present in the registry.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.raw))
	for typ := range r.raw {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of (type, name) entries.
func (r *Registry) Len() int {
	n := 0
	for _, names := range r.raw {
		n += len(names)
	}
	return n
}

// Snapshot returns a deep, independent copy of the registry. Later
// mutation of the live registry is not visible through the snapshot,
// which is what makes before/after diffing possible. Treat snapshots as
// immutable.
func (r *Registry) Snapshot() *Registry {
	out := New()
	for typ, names := range r.raw {
		bucket := make(map[string]Value, len(names))
		for name, v := range names {
			bucket[name] = v.Copy()
		}
		out.raw[typ] = bucket
	}
	return out
}

// Restore replaces the registry contents with a deep copy of the given
// snapshot. The scheduler uses this to roll back the partial mutations
// of a failed mod-phase execution.
func (r *Registry) Restore(snap *Registry) {
	restored := snap.Snapshot()
	r.raw = restored.raw
}

// MarshalJSON emits the full type -> name -> value tree. Map keys are
// emitted sorted, so two identical registries marshal byte-identically.
func (r *Registry) MarshalJSON() ([]byte, error) {
	tree := make(map[string]map[string]Value, len(r.raw))
	for typ, names := range r.raw {
		tree[typ] = names
	}
	return json.Marshal(tree)
}
