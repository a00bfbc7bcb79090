// Package mods describes the units the lifecycle runs: named, versioned
// mods carrying at most one script per phase, the fixed phase order, and
// the accessors that hand script text to the engine.
package mods

// Phase is one ordered step of the mod-loading lifecycle. Phases execute
// strictly in declaration order; every mod completes a phase before any
// mod starts the next.
type Phase int

const (
	PhaseSettings Phase = iota
	PhaseSettingsUpdates
	PhaseSettingsFinalFixes
	PhaseData
	PhaseDataUpdates
	PhaseDataFinalFixes

	phaseCount
)

var phaseNames = [phaseCount]string{
	"settings",
	"settings-updates",
	"settings-final-fixes",
	"data",
	"data-updates",
	"data-final-fixes",
}

// Phases returns the lifecycle phases in execution order.
func Phases() []Phase {
	out := make([]Phase, phaseCount)
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// String returns the phase name, e.g. "settings-updates".
func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name in JSON output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Filename returns the script entry file a mod provides for this phase,
// e.g. "data-final-fixes.lua".
func (p Phase) Filename() string {
	return p.String() + ".lua"
}

// IsData reports whether the phase belongs to the data stage rather than
// the settings stage. Startup settings become visible to scripts exactly
// at the settings/data boundary.
func (p Phase) IsData() bool {
	return p >= PhaseData
}
