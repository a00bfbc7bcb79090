package mods

import (
	"fmt"
	"sort"
)

// LoadOrder sorts mods into a valid load order: every order-affecting
// dependency precedes its dependent. Ties break on mod name so the
// result is deterministic. Dependencies on mods outside the set are
// ignored; the engine itself trusts whatever order it is finally given.
func LoadOrder(list []Mod) ([]Mod, error) {
	byName := make(map[string]Mod, len(list))
	for _, m := range list {
		if _, dup := byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate mod %q", m.Name)
		}
		byName[m.Name] = m
	}

	indegree := make(map[string]int, len(list))
	dependents := make(map[string][]string, len(list))
	for _, m := range list {
		indegree[m.Name] += 0
		for _, dep := range m.OrderDependencies() {
			if _, present := byName[dep]; !present {
				continue
			}
			indegree[m.Name]++
			dependents[dep] = append(dependents[dep], m.Name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	out := make([]Mod, 0, len(list))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		out = append(out, byName[name])

		released := dependents[name]
		sort.Strings(released)
		for _, dependent := range released {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(out) != len(list) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving %v", stuck)
	}

	return out, nil
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
