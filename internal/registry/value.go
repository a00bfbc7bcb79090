// Package registry holds the shared prototype namespace mutated by mod
// scripts during the data-stage lifecycle, along with the untyped value
// tree those scripts produce. Typed deserialization of prototype values
// is a downstream concern and does not live here.
package registry

import (
	"encoding/json"
	"strconv"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindTable
)

// String returns the kind name as scripts would describe it.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindTable:
		return "table"
	}
	return "unknown"
}

// Value is one node of an untyped prototype tree. No schema is enforced
// at this level; registry operations type-switch on the concrete variant.
type Value interface {
	Kind() Kind
	// Copy returns a deep, independent copy of the value. Mutating the
	// copy must never be visible through the original.
	Copy() Value
	// Equal reports structural equality with another value.
	Equal(Value) bool
}

// Null is the nil variant.
type Null struct{}

// Bool is the boolean variant.
type Bool bool

// Number is the numeric variant. Lua has a single number type, so
// integers ride along as integral floats.
type Number float64

// String is the string variant.
type String string

// Array is the ordered sequence variant.
type Array []Value

// Table is the unordered string-keyed mapping variant.
type Table map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Table) Kind() Kind  { return KindTable }

func (v Null) Copy() Value   { return v }
func (v Bool) Copy() Value   { return v }
func (v Number) Copy() Value { return v }
func (v String) Copy() Value { return v }

func (v Array) Copy() Value {
	out := make(Array, len(v))
	for i, e := range v {
		out[i] = e.Copy()
	}
	return out
}

func (v Table) Copy() Value {
	out := make(Table, len(v))
	for k, e := range v {
		out[k] = e.Copy()
	}
	return out
}

func (v Null) Equal(o Value) bool {
	_, ok := o.(Null)
	return ok
}

func (v Bool) Equal(o Value) bool {
	b, ok := o.(Bool)
	return ok && b == v
}

func (v Number) Equal(o Value) bool {
	n, ok := o.(Number)
	return ok && n == v
}

func (v String) Equal(o Value) bool {
	s, ok := o.(String)
	return ok && s == v
}

func (v Array) Equal(o Value) bool {
	a, ok := o.(Array)
	if !ok || len(a) != len(v) {
		return false
	}
	for i, e := range v {
		if !e.Equal(a[i]) {
			return false
		}
	}
	return true
}

func (v Table) Equal(o Value) bool {
	t, ok := o.(Table)
	if !ok || len(t) != len(v) {
		return false
	}
	for k, e := range v {
		other, present := t[k]
		if !present || !e.Equal(other) {
			return false
		}
	}
	return true
}

func (v Null) MarshalJSON() ([]byte, error)   { return []byte("null"), nil }
func (v Bool) MarshalJSON() ([]byte, error)   { return json.Marshal(bool(v)) }
func (v String) MarshalJSON() ([]byte, error) { return json.Marshal(string(v)) }
func (v Array) MarshalJSON() ([]byte, error)  { return json.Marshal([]Value(v)) }
func (v Table) MarshalJSON() ([]byte, error)  { return json.Marshal(map[string]Value(v)) }

func (v Number) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if f == float64(int64(f)) {
		return []byte(strconv.FormatInt(int64(f), 10)), nil
	}
	return json.Marshal(f)
}

// GetString returns the string field k of a table, or "" if absent or
// not a string.
func (v Table) GetString(k string) string {
	if s, ok := v[k].(String); ok {
		return string(s)
	}
	return ""
}

// GetBool returns the boolean field k of a table. The second result
// reports whether the field was present and boolean.
func (v Table) GetBool(k string) (bool, bool) {
	if b, ok := v[k].(Bool); ok {
		return bool(b), true
	}
	return false, false
}
