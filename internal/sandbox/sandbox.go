// Package sandbox executes one mod script inside an isolated,
// capability-limited Lua interpreter. Every (mod, phase) execution gets
// a fresh interpreter state carrying only an explicit allow-list of
// libraries and host functions; the shared prototype registry is only
// reachable through the host data API bound at construction.
package sandbox

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/modforge/datastage/internal/modctx"
	"github.com/modforge/datastage/internal/mods"
	"github.com/modforge/datastage/internal/registry"
)

// Variant selects the capability tier a sandbox is constructed with.
// Both tiers share one construction path; the tier only widens the
// allow-list, so the two can never drift behaviorally.
type Variant int

const (
	// Restricted is the tier for third-party mod scripts: table, string
	// and math primitives plus the registry host API. No filesystem, no
	// process access, no arbitrary module loading.
	Restricted Variant = iota
	// Privileged additionally exposes controlled file and serialization
	// helpers. Only trusted core scripts run privileged.
	Privileged
)

func (v Variant) String() string {
	if v == Privileged {
		return "privileged"
	}
	return "restricted"
}

// LogFunc is the verbosity-gated logging hook handed to a sandbox.
type LogFunc func(level int, format string, args ...interface{})

// Config describes one sandbox construction. All fields except Settings
// and Log are required.
type Config struct {
	Variant  Variant
	Phase    mods.Phase
	Registry *registry.Registry
	Context  *modctx.Context
	// Settings is the startup settings tree exposed as the settings
	// global during data phases. Nil leaves the global unset.
	Settings registry.Value
	Log      LogFunc
}

// Sandbox is a scoped interpreter bound to exactly one script
// execution. It owns no state beyond that execution and must not
// outlive the call that created it; Close always releases the
// interpreter, also after a failed or cancelled execution.
type Sandbox struct {
	state  *lua.LState
	cfg    Config
	loaded *lua.LTable // require memoization, keyed by resolved chunk name
	closed bool

	// pendingKind/pendingMsg record the last fault raised by a
	// capability guard or the import resolver, host-side. fail consults
	// them instead of the error text, so a script inventing a
	// violation-shaped message cannot forge the classification.
	pendingKind Kind
	pendingMsg  string
}

// New constructs a sandbox for one script execution. The interpreter
// starts with no standard libraries at all; everything reachable from
// the script is registered here, capability by capability.
func New(cfg Config) *Sandbox {
	if cfg.Log == nil {
		cfg.Log = func(int, string, ...interface{}) {}
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	s := &Sandbox{state: L, cfg: cfg}

	// Allow-listed standard libraries. No io, no os, no package, no
	// debug: file, process and loader access stay host-controlled.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Base slips in script-driven code loading; take it back out.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	s.registerLog()
	s.registerRequire()
	s.registerDataAPI()
	s.registerOsShim()
	s.registerIoGuard()
	registerHelpers(s)
	registerDefines(L)

	modsTable := L.NewTable()
	for name, version := range cfg.Context.Versions() {
		L.SetField(modsTable, name, lua.LString(version))
	}
	L.SetGlobal("mods", modsTable)

	if cfg.Settings != nil {
		L.SetGlobal("settings", fromValue(L, cfg.Settings))
	}

	return s
}

// Execute runs the given script source. The context bounds execution
// time; expiry surfaces as a timeout error. Any failure is returned as
// an *Error attributed to this sandbox's mod and phase.
func (s *Sandbox) Execute(ctx context.Context, source, chunk string) error {
	L := s.state
	s.pendingKind = KindRuntime
	s.pendingMsg = ""
	if ctx != nil && ctx.Done() != nil {
		L.SetContext(ctx)
	}

	fn, err := L.Load(strings.NewReader(stripBOM(source)), chunk)
	if err != nil {
		return s.fail(ctx, err.Error())
	}

	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		return s.fail(ctx, errMessage(err))
	}
	return nil
}

// Close releases the interpreter state. Safe to call more than once and
// required even after a failed execution.
func (s *Sandbox) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.state.Close()
}

// fail classifies an execution failure. Context expiry wins over the
// script's own message; after that the fault recorded host-side by the
// capability guards and the import resolver decides the kind, but only
// when that fault is what actually surfaced. A recorded fault the
// script caught with pcall and replaced by its own error stays an
// ordinary script fault.
func (s *Sandbox) fail(ctx context.Context, message string) *Error {
	kind := KindRuntime
	switch {
	case ctx != nil && ctx.Err() != nil:
		kind = KindTimeout
		message = "execution budget exceeded: " + ctx.Err().Error()
	case s.pendingKind != KindRuntime && strings.Contains(message, s.pendingMsg):
		kind = s.pendingKind
	}
	return &Error{
		Mod:     s.cfg.Context.Mod().Name,
		Phase:   s.cfg.Phase,
		Kind:    kind,
		Message: message,
	}
}

// errMessage pulls the script-level message out of a gopher-lua error,
// dropping the Go-side wrapping but keeping the Lua position prefix.
func errMessage(err error) string {
	if apiErr, ok := err.(*lua.ApiError); ok {
		return apiErr.Object.String()
	}
	return err.Error()
}

// guardFn returns a host function that fails the capability check for
// name. Guards are bound in place of everything outside the variant's
// allow-list; the fault is recorded on the sandbox before raising so
// that touching a guard is distinguishable from an ordinary script
// fault.
func (s *Sandbox) guardFn(name string) *lua.LFunction {
	variant := s.cfg.Variant
	return s.state.NewFunction(func(L *lua.LState) int {
		msg := fmt.Sprintf("%s is not available to %s scripts", name, variant)
		s.pendingKind = KindViolation
		s.pendingMsg = msg
		L.RaiseError("%s", msg)
		return 0
	})
}

// registerLog binds log, print and localised_print to the host logger.
// Scripts have no other output channel.
func (s *Sandbox) registerLog() {
	L := s.state
	mod := s.cfg.Context.Mod().Name
	logFn := L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		s.cfg.Log(2, "[%s] %s", mod, strings.Join(parts, "\t"))
		return 0
	})
	L.SetGlobal("log", logFn)
	L.SetGlobal("print", logFn)
	L.SetGlobal("localised_print", logFn)

	L.SetGlobal("table_size", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		n := 0
		tbl.ForEach(func(lua.LValue, lua.LValue) { n++ })
		L.Push(lua.LNumber(n))
		return 1
	}))
}

// registerRequire installs the scoped module loader. Resolution goes
// through the mod execution context (own root, then declared deps);
// results memoize per sandbox instance under the resolved chunk name so
// diamond imports load once and circular imports resolve to true.
func (s *Sandbox) registerRequire() {
	L := s.state
	loaded := L.NewTable()
	s.loaded = loaded

	requireFn := L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		imp, err := s.cfg.Context.ResolveImport(name)
		if err != nil {
			s.pendingKind = KindModuleNotFound
			s.pendingMsg = err.Error()
			L.RaiseError("%v", err)
			return 0
		}

		if cached := L.GetField(loaded, imp.Chunk); cached != lua.LNil {
			L.Push(cached)
			return 1
		}

		// Mark before executing so circular requires terminate.
		L.SetField(loaded, imp.Chunk, lua.LTrue)

		fn, err := L.Load(strings.NewReader(imp.Source), imp.Chunk)
		if err != nil {
			L.SetField(loaded, imp.Chunk, lua.LNil)
			L.RaiseError("error loading module '%s': %v", name, err)
			return 0
		}

		L.Push(fn)
		L.Push(lua.LString(name))
		if err := L.PCall(1, 1, nil); err != nil {
			L.SetField(loaded, imp.Chunk, lua.LNil)
			L.RaiseError("%s", errMessage(err))
			return 0
		}

		result := L.Get(-1)
		L.Pop(1)
		if result != lua.LNil {
			L.SetField(loaded, imp.Chunk, result)
		}
		L.Push(result)
		return 1
	})

	L.SetGlobal("require", requireFn)

	// package.loaded points at the same memo table for compatibility.
	pkg := L.NewTable()
	L.SetField(pkg, "loaded", loaded)
	L.SetGlobal("package", pkg)
}

// registerDataAPI binds the prototype registry surface. These closures
// are the only route from a script to the shared registry, and they
// hold the registry reference themselves; the script never sees a
// handle it could retain.
func (s *Sandbox) registerDataAPI() {
	L := s.state
	reg := s.cfg.Registry
	mod := s.cfg.Context.Mod().Name

	data := L.NewTable()

	// data:extend{proto, ...} / data.extend{proto, ...}
	// Every prototype needs string type and name fields. An existing
	// (type, name) pair is overwritten silently, last write wins.
	L.SetField(data, "extend", L.NewFunction(func(L *lua.LState) int {
		arg := 1
		if L.GetTop() == 2 {
			arg = 2 // colon call, first arg is the data table itself
		}
		protos := L.CheckTable(arg)

		var raiseErr error
		protos.ForEach(func(_, lv lua.LValue) {
			if raiseErr != nil {
				return
			}
			proto, ok := lv.(*lua.LTable)
			if !ok {
				raiseErr = errNonTableProto(lv)
				return
			}
			typ := lua.LVAsString(L.GetField(proto, "type"))
			name := lua.LVAsString(L.GetField(proto, "name"))
			if typ == "" || name == "" {
				raiseErr = errUnnamedProto(typ, name)
				return
			}
			value, err := toValue(proto)
			if err != nil {
				raiseErr = err
				return
			}
			reg.Extend(typ, name, value)
			s.cfg.Log(3, "[%s] extend %s/%s", mod, typ, name)
		})
		if raiseErr != nil {
			L.RaiseError("data.extend: %v", raiseErr)
		}
		return 0
	}))

	// data.get(type, name) -> deep copy of the stored value, or nil.
	// Mutating the result does not touch the registry; re-extend to
	// commit a modified prototype.
	L.SetField(data, "get", L.NewFunction(func(L *lua.LState) int {
		typ := L.CheckString(1)
		name := L.CheckString(2)
		value, ok := reg.Get(typ, name)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(fromValue(L, value))
		return 1
	}))

	// data.keys(type) -> sorted array of prototype names.
	L.SetField(data, "keys", L.NewFunction(func(L *lua.LState) int {
		typ := L.CheckString(1)
		out := L.NewTable()
		for i, name := range reg.Keys(typ) {
			out.RawSetInt(i+1, lua.LString(name))
		}
		L.Push(out)
		return 1
	}))

	// data.remove(type, name) -> whether the entry existed.
	L.SetField(data, "remove", L.NewFunction(func(L *lua.LState) int {
		typ := L.CheckString(1)
		name := L.CheckString(2)
		removed := reg.Remove(typ, name)
		if removed {
			s.cfg.Log(3, "[%s] remove %s/%s", mod, typ, name)
		}
		L.Push(lua.LBool(removed))
		return 1
	}))

	L.SetGlobal("data", data)
}

// registerOsShim exposes the harmless clock subset of os and guards the
// rest. Neither tier gets process or environment access.
func (s *Sandbox) registerOsShim() {
	L := s.state
	osTable := L.NewTable()

	L.SetField(osTable, "clock", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(luaClock()))
		return 1
	}))
	L.SetField(osTable, "time", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(luaTime()))
		return 1
	}))
	L.SetField(osTable, "difftime", L.NewFunction(func(L *lua.LState) int {
		a := L.CheckNumber(1)
		b := L.OptNumber(2, 0)
		L.Push(a - b)
		return 1
	}))

	for _, name := range []string{"date", "execute", "exit", "getenv", "remove", "rename", "setlocale", "tmpname"} {
		L.SetField(osTable, name, s.guardFn("os."+name))
	}
	L.SetGlobal("os", osTable)
}

// registerIoGuard binds an io table of pure guards. Raw stream access
// is outside both capability tiers; privileged scripts go through
// helpers.read_file / helpers.write_file instead.
func (s *Sandbox) registerIoGuard() {
	L := s.state
	ioTable := L.NewTable()
	for _, name := range []string{"open", "close", "input", "output", "read", "write", "lines", "popen", "tmpfile"} {
		L.SetField(ioTable, name, s.guardFn("io."+name))
	}
	L.SetGlobal("io", ioTable)
}

func errNonTableProto(lv lua.LValue) error {
	return &protoError{"prototype definitions must be tables, got " + lv.Type().String()}
}

func errUnnamedProto(typ, name string) error {
	if typ == "" {
		return &protoError{"prototype is missing a type"}
	}
	return &protoError{"prototype of type " + typ + " is missing a name"}
}

type protoError struct{ msg string }

func (e *protoError) Error() string { return e.msg }
