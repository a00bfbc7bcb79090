package sandbox

import (
	"encoding/json"
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/modforge/datastage/internal/registry"
)

// toValue converts a Lua value into a registry value tree. Tables whose
// keys are all positive integers become arrays (holes fill in as nil);
// any other key shape becomes a string-keyed table, with numeric keys
// stringified so nothing is silently dropped. Functions, threads,
// userdata and self-referential tables cannot be stored.
func toValue(lv lua.LValue) (registry.Value, error) {
	return convertValue(lv, nil)
}

func convertValue(lv lua.LValue, seen map[*lua.LTable]bool) (registry.Value, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return registry.Null{}, nil
	case lua.LBool:
		return registry.Bool(v), nil
	case lua.LNumber:
		return registry.Number(v), nil
	case lua.LString:
		return registry.String(v), nil
	case *lua.LTable:
		if seen == nil {
			seen = make(map[*lua.LTable]bool)
		}
		// A table reappearing on its own conversion path is a cycle.
		// Sharing the same table under two sibling keys is fine, so the
		// mark is dropped once the subtree is done.
		if seen[v] {
			return nil, fmt.Errorf("cannot store a self-referential table in the registry")
		}
		seen[v] = true
		defer delete(seen, v)
		return tableToValue(v, seen)
	default:
		return nil, fmt.Errorf("cannot store a %s value in the registry", lv.Type())
	}
}

func tableToValue(tbl *lua.LTable, seen map[*lua.LTable]bool) (registry.Value, error) {
	nonArrayKeys := false
	maxN := 0
	var iterErr error
	tbl.ForEach(func(key, _ lua.LValue) {
		switch k := key.(type) {
		case lua.LNumber:
			n := int(k)
			if float64(n) != float64(k) || n < 1 {
				nonArrayKeys = true
				return
			}
			if n > maxN {
				maxN = n
			}
		case lua.LString:
			nonArrayKeys = true
		default:
			iterErr = fmt.Errorf("cannot store a table keyed by %s in the registry", key.Type())
		}
	})
	if iterErr != nil {
		return nil, iterErr
	}

	// Pure array: only positive integer keys.
	if maxN > 0 && !nonArrayKeys {
		arr := make(registry.Array, maxN)
		for i := 1; i <= maxN; i++ {
			elem, err := convertValue(tbl.RawGetInt(i), seen)
			if err != nil {
				return nil, err
			}
			arr[i-1] = elem
		}
		return arr, nil
	}

	out := make(registry.Table)
	tbl.ForEach(func(key, val lua.LValue) {
		if iterErr != nil {
			return
		}
		var name string
		switch k := key.(type) {
		case lua.LString:
			name = string(k)
		case lua.LNumber:
			name = strconv.FormatFloat(float64(k), 'f', -1, 64)
		default:
			return
		}
		elem, err := convertValue(val, seen)
		if err != nil {
			iterErr = err
			return
		}
		out[name] = elem
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// fromValue converts a registry value tree into a fresh Lua structure.
// The result shares nothing with the registry, so script-side mutation
// of a data.get result never leaks back without an explicit extend.
func fromValue(L *lua.LState, v registry.Value) lua.LValue {
	switch val := v.(type) {
	case nil, registry.Null:
		return lua.LNil
	case registry.Bool:
		return lua.LBool(val)
	case registry.Number:
		return lua.LNumber(val)
	case registry.String:
		return lua.LString(val)
	case registry.Array:
		tbl := L.NewTable()
		for i, elem := range val {
			tbl.RawSetInt(i+1, fromValue(L, elem))
		}
		return tbl
	case registry.Table:
		tbl := L.NewTable()
		for k, elem := range val {
			tbl.RawSetString(k, fromValue(L, elem))
		}
		return tbl
	}
	return lua.LNil
}

// valueToJSON renders a registry value as JSON text.
func valueToJSON(v registry.Value) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// valueFromJSON parses JSON text into a registry value tree.
func valueFromJSON(text string) (registry.Value, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, err
	}
	return valueFromGo(parsed), nil
}

func valueFromGo(v interface{}) registry.Value {
	switch val := v.(type) {
	case nil:
		return registry.Null{}
	case bool:
		return registry.Bool(val)
	case float64:
		return registry.Number(val)
	case string:
		return registry.String(val)
	case []interface{}:
		arr := make(registry.Array, len(val))
		for i, elem := range val {
			arr[i] = valueFromGo(elem)
		}
		return arr
	case map[string]interface{}:
		tbl := make(registry.Table, len(val))
		for k, elem := range val {
			tbl[k] = valueFromGo(elem)
		}
		return tbl
	}
	return registry.Null{}
}
