package mods

import (
	"fmt"
	"strings"
)

// Mod is one installed mod as handed to the engine by the external
// dependency resolver. Immutable once a run starts.
type Mod struct {
	Name         string
	Version      string
	Dependencies []Dependency
}

// DependencyKind is the relationship flag carried by a dependency entry.
type DependencyKind int

const (
	// DependencyRequired is the default, unprefixed kind.
	DependencyRequired DependencyKind = iota
	// DependencyOptional is the "?" prefix.
	DependencyOptional
	// DependencyHiddenOptional is the "(?)" prefix.
	DependencyHiddenOptional
	// DependencyLazy is the "~" prefix: required, but without an effect
	// on load order.
	DependencyLazy
	// DependencyIncompatible is the "!" prefix.
	DependencyIncompatible
)

// Dependency is one parsed entry of a mod's declared dependency list.
// Version constraints are resolved externally before the engine runs, so
// only the raw constraint text is retained for diagnostics.
type Dependency struct {
	Kind       DependencyKind
	Name       string
	Constraint string
}

// ParseDependency parses an info.json dependency string such as
// "base >= 1.1.0", "? quality", "(?) angels-refining" or "! conflicting".
func ParseDependency(s string) (Dependency, error) {
	rest := strings.TrimSpace(s)
	if rest == "" {
		return Dependency{}, fmt.Errorf("empty dependency")
	}

	dep := Dependency{Kind: DependencyRequired}
	switch {
	case strings.HasPrefix(rest, "(?)"):
		dep.Kind = DependencyHiddenOptional
		rest = strings.TrimSpace(rest[3:])
	case strings.HasPrefix(rest, "!"):
		dep.Kind = DependencyIncompatible
		rest = strings.TrimSpace(rest[1:])
	case strings.HasPrefix(rest, "?"):
		dep.Kind = DependencyOptional
		rest = strings.TrimSpace(rest[1:])
	case strings.HasPrefix(rest, "~"):
		dep.Kind = DependencyLazy
		rest = strings.TrimSpace(rest[1:])
	}

	if rest == "" {
		return Dependency{}, fmt.Errorf("dependency %q has no mod name", s)
	}

	// A version constraint starts at the first comparison operator.
	// Mod names may contain spaces, so scan for the operator rather
	// than splitting on whitespace.
	for _, op := range []string{">=", "<=", ">", "<", "="} {
		marker := " " + op + " "
		if i := strings.Index(rest, marker); i >= 0 {
			dep.Name = strings.TrimSpace(rest[:i])
			dep.Constraint = op + " " + strings.TrimSpace(rest[i+len(marker):])
			break
		}
	}
	if dep.Name == "" {
		dep.Name = rest
	}
	if dep.Name == "" {
		return Dependency{}, fmt.Errorf("dependency %q has no mod name", s)
	}

	return dep, nil
}

// ParseDependencies parses a full dependency list, failing on the first
// malformed entry.
func ParseDependencies(entries []string) ([]Dependency, error) {
	out := make([]Dependency, 0, len(entries))
	for _, e := range entries {
		dep, err := ParseDependency(e)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, nil
}

// ScopeNames returns the dependency mod names, in declaration order,
// that participate in import resolution. Incompatibilities never do.
func (m Mod) ScopeNames() []string {
	var out []string
	for _, dep := range m.Dependencies {
		if dep.Kind == DependencyIncompatible {
			continue
		}
		out = append(out, dep.Name)
	}
	return out
}

// OrderDependencies returns the dependency names that constrain load
// order: required and optional entries, but not lazy ("~") ones and not
// incompatibilities.
func (m Mod) OrderDependencies() []string {
	var out []string
	for _, dep := range m.Dependencies {
		switch dep.Kind {
		case DependencyRequired, DependencyOptional, DependencyHiddenOptional:
			out = append(out, dep.Name)
		}
	}
	return out
}
