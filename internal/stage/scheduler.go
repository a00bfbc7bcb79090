// Package stage drives the mod set through the lifecycle phases. It
// owns the registry and the diff record list for the duration of a run:
// for every phase, in the fixed phase order, it executes each mod's
// script (if any) in the externally supplied mod order, snapshotting
// and diffing the registry around every execution.
package stage

import (
	"context"
	"fmt"

	"github.com/modforge/datastage/internal/config"
	"github.com/modforge/datastage/internal/diff"
	"github.com/modforge/datastage/internal/modctx"
	"github.com/modforge/datastage/internal/mods"
	"github.com/modforge/datastage/internal/registry"
	"github.com/modforge/datastage/internal/sandbox"
)

// Record attributes one diff to the (mod, phase) execution that
// produced it. The record sequence of a run is in execution order, so
// replaying it reconstructs the registry's provenance.
type Record struct {
	Mod   string      `json:"mod"`
	Phase mods.Phase  `json:"phase"`
	Diff  diff.Record `json:"diff"`
}

// OrderError reports a mod list in which a mod's declared dependency
// appears after the mod itself. The scheduler trusts the external
// resolver for everything else, but this violation would make the run
// meaningless, so it is rejected before any script executes.
type OrderError struct {
	Mod        string
	Dependency string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("mod order violation: %s is listed before its dependency %s", e.Mod, e.Dependency)
}

// Scheduler runs the lifecycle over one mod set.
type Scheduler struct {
	cfg *config.Config
	src mods.Source
}

// New creates a scheduler reading scripts from src.
func New(cfg *config.Config, src mods.Source) *Scheduler {
	return &Scheduler{cfg: cfg, src: src}
}

// Run executes all lifecycle phases for the given, already ordered mod
// list against reg. It returns one Record per executed (mod, phase), in
// execution order. Any script failure aborts the run: records up to the
// failure are returned, the failing execution's partial mutations are
// rolled back, and the error names the mod, phase and kind.
//
// Execution is strictly sequential. Each step observes every prior
// step's committed mutations, which is exactly why nothing here may be
// reordered or parallelized.
func (s *Scheduler) Run(ctx context.Context, list []mods.Mod, reg *registry.Registry) ([]Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := checkOrder(list); err != nil {
		return nil, err
	}

	var records []Record
	var settings registry.Value

	for _, phase := range mods.Phases() {
		// Startup settings become observable exactly at the
		// settings/data boundary.
		if phase == mods.PhaseData {
			settings = startupSettings(reg)
		}

		for _, m := range list {
			source, ok, err := s.src.Script(m.Name, phase)
			if err != nil {
				return records, fmt.Errorf("reading __%s__/%s: %w", m.Name, phase.Filename(), err)
			}
			if !ok {
				// No script for this phase: registry untouched,
				// no record produced.
				continue
			}

			rec, err := s.runScript(ctx, m, list, phase, settings, source, reg)
			if err != nil {
				return records, err
			}
			records = append(records, rec)
			s.cfg.Log(2, "[%s] completed %s", phase, m.Name)
		}
		s.cfg.Log(1, "[stage] %s completed", phase)
	}

	return records, nil
}

// runScript executes one (mod, phase) script inside a fresh sandbox and
// diffs the registry around it. The sandbox never outlives this call,
// and on failure the registry is restored to the pre-execution snapshot
// so a broken script cannot leave half-applied prototypes behind.
func (s *Scheduler) runScript(ctx context.Context, m mods.Mod, list []mods.Mod, phase mods.Phase, settings registry.Value, source string, reg *registry.Registry) (Record, error) {
	before := reg.Snapshot()

	variant := sandbox.Restricted
	if s.cfg.Trusted(m.Name) {
		variant = sandbox.Privileged
	}

	var phaseSettings registry.Value
	if phase.IsData() {
		phaseSettings = settings
	}

	sb := sandbox.New(sandbox.Config{
		Variant:  variant,
		Phase:    phase,
		Registry: reg,
		Context:  modctx.New(m, list, s.src),
		Settings: phaseSettings,
		Log:      s.cfg.Log,
	})
	defer sb.Close()

	execCtx := ctx
	if budget := s.cfg.Run.Timeout.Duration(); budget > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	chunk := fmt.Sprintf("__%s__/%s", m.Name, phase.Filename())
	if err := sb.Execute(execCtx, source, chunk); err != nil {
		reg.Restore(before)
		return Record{}, err
	}

	return Record{
		Mod:   m.Name,
		Phase: phase,
		Diff:  diff.Compute(before, reg),
	}, nil
}

// checkOrder rejects a mod list in which any order-affecting dependency
// appears after its dependent. Dependencies not present in the list at
// all are the external resolver's concern and are ignored here.
func checkOrder(list []mods.Mod) error {
	position := make(map[string]int, len(list))
	for i, m := range list {
		position[m.Name] = i
	}
	for i, m := range list {
		for _, dep := range m.OrderDependencies() {
			pos, present := position[dep]
			if present && pos > i {
				return &OrderError{Mod: m.Name, Dependency: dep}
			}
		}
	}
	return nil
}
