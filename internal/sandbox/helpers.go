package sandbox

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// engineVersion is the data format version the loader targets, exposed
// to scripts as helpers.game_version.
const engineVersion = "2.0.0"

// registerHelpers binds the helpers table. The clock, version and
// direction utilities are common to both tiers; serialization and file
// access are real only in privileged sandboxes and capability guards in
// restricted ones.
func registerHelpers(s *Sandbox) {
	L := s.state
	helpers := L.NewTable()

	L.SetField(helpers, "game_version", lua.LString(engineVersion))

	L.SetField(helpers, "compare_versions", L.NewFunction(func(L *lua.LState) int {
		first := L.CheckString(1)
		second := L.CheckString(2)
		cmp, err := compareVersions(first, second)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(lua.LNumber(cmp))
		return 1
	}))

	L.SetField(helpers, "direction_to_string", L.NewFunction(func(L *lua.LState) int {
		dir := L.CheckInt(1)
		name, ok := directionName(dir)
		if !ok {
			L.RaiseError("invalid direction: %d", dir)
			return 0
		}
		L.Push(lua.LString(name))
		return 1
	}))

	if s.cfg.Variant == Privileged {
		registerPrivilegedHelpers(s, helpers)
	} else {
		for _, name := range []string{
			"table_to_json", "json_to_table",
			"encode_string", "decode_string",
			"read_file", "write_file", "remove_path",
		} {
			L.SetField(helpers, name, s.guardFn("helpers."+name))
		}
	}

	L.SetGlobal("helpers", helpers)
}

// registerPrivilegedHelpers binds the serialization and controlled file
// helpers available to trusted core scripts.
func registerPrivilegedHelpers(s *Sandbox, helpers *lua.LTable) {
	L := s.state

	L.SetField(helpers, "table_to_json", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		value, err := toValue(tbl)
		if err != nil {
			L.RaiseError("table_to_json: %v", err)
			return 0
		}
		text, err := valueToJSON(value)
		if err != nil {
			L.RaiseError("table_to_json: %v", err)
			return 0
		}
		L.Push(lua.LString(text))
		return 1
	}))

	L.SetField(helpers, "json_to_table", L.NewFunction(func(L *lua.LState) int {
		text := L.CheckString(1)
		value, err := valueFromJSON(text)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(fromValue(L, value))
		return 1
	}))

	// encode_string / decode_string: zlib deflate + base64, the wire
	// form blueprint strings use. Both return nil on malformed input
	// instead of raising.
	L.SetField(helpers, "encode_string", L.NewFunction(func(L *lua.LState) int {
		plain := L.CheckString(1)
		encoded, err := encodeString(plain)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(encoded))
		return 1
	}))

	L.SetField(helpers, "decode_string", L.NewFunction(func(L *lua.LState) int {
		encoded := L.CheckString(1)
		plain, err := decodeString(encoded)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(plain))
		return 1
	}))

	// read_file resolves through the mod's import scope, never the
	// host filesystem directly.
	L.SetField(helpers, "read_file", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		content, err := s.cfg.Context.ReadFile(path)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(content))
		return 1
	}))

	// write_file captures into the execution context; nothing reaches
	// the real filesystem.
	L.SetField(helpers, "write_file", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		data := L.ToStringMeta(L.Get(2)).String()
		appendTo := L.OptBool(3, false)
		s.cfg.Context.WriteFile(path, data, appendTo)
		return 0
	}))

	L.SetField(helpers, "remove_path", L.NewFunction(func(L *lua.LState) int {
		// Accepted for script compatibility; there is nothing to
		// remove because writes never leave the capture.
		L.CheckString(1)
		return 0
	}))
}

// registerDefines binds the defines constant tree. Only the subset the
// data stage can observe is populated.
func registerDefines(L *lua.LState) {
	defines := L.NewTable()

	direction := L.NewTable()
	for i, name := range directionNames {
		L.SetField(direction, name, lua.LNumber(i))
	}
	L.SetField(defines, "direction", direction)

	difficulty := L.NewTable()
	for i, name := range []string{"normal", "expensive"} {
		L.SetField(difficulty, name, lua.LNumber(i))
	}
	L.SetField(defines, "difficulty_settings", difficulty)

	L.SetGlobal("defines", defines)
}

var directionNames = []string{
	"north", "northnortheast", "northeast", "eastnortheast",
	"east", "eastsoutheast", "southeast", "southsoutheast",
	"south", "southsouthwest", "southwest", "westsouthwest",
	"west", "westnorthwest", "northwest", "northnorthwest",
}

var directionStrings = []string{
	"North", "NorthNorthEast", "NorthEast", "EastNorthEast",
	"East", "EastSouthEast", "SouthEast", "SouthSouthEast",
	"South", "SouthSouthWest", "SouthWest", "WestSouthWest",
	"West", "WestNorthWest", "NorthWest", "NorthNorthWest",
}

func directionName(dir int) (string, bool) {
	if dir < 0 || dir >= len(directionStrings) {
		return "", false
	}
	return directionStrings[dir], true
}

// compareVersions compares two "a.b" or "a.b.c" version strings,
// returning -1, 0 or 1.
func compareVersions(first, second string) (int, error) {
	a, err := parseVersion(first)
	if err != nil {
		return 0, err
	}
	b, err := parseVersion(second)
	if err != nil {
		return 0, err
	}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func parseVersion(s string) ([3]uint64, error) {
	var out [3]uint64
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return out, fmt.Errorf("invalid version: expected 'a.b' or 'a.b.c' but %q was given", s)
	}
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return out, fmt.Errorf("invalid version: expected 'a.b' or 'a.b.c' but %q was given", s)
		}
		out[i] = n
	}
	return out, nil
}

func encodeString(plain string) (string, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write([]byte(plain)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeString(encoded string) (string, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", err
	}
	defer r.Close()
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

var processStart = time.Now()

// luaClock approximates os.clock: seconds since the process started.
func luaClock() float64 {
	return time.Since(processStart).Seconds()
}

// luaTime approximates os.time: current Unix time in seconds.
func luaTime() float64 {
	return float64(time.Now().Unix())
}

// stripBOM drops a leading UTF-8 byte order mark from script source.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\xef\xbb\xbf")
}
