package sandbox

import (
	"fmt"

	"github.com/modforge/datastage/internal/mods"
)

// Kind classifies why a script execution failed. Every kind is fatal to
// the whole run: later mods assume earlier mods completed.
type Kind int

const (
	// KindRuntime is a plain Lua runtime fault raised by the script.
	KindRuntime Kind = iota
	// KindViolation is a restricted script touching a capability
	// outside its allow-list.
	KindViolation
	// KindModuleNotFound is an import that matched nothing in the
	// requesting mod or its declared dependencies.
	KindModuleNotFound
	// KindTimeout is the per-execution budget expiring.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRuntime:
		return "script error"
	case KindViolation:
		return "sandbox violation"
	case KindModuleNotFound:
		return "module not found"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a failed script execution, attributed to the mod and phase
// that ran it.
type Error struct {
	Mod     string
	Phase   mods.Phase
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("__%s__/%s: %s: %s", e.Mod, e.Phase.Filename(), e.Kind, e.Message)
}
