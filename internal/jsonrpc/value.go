// Package jsonrpc provides a dynamic JSON value over parsed editor
// and LSP frames, and the outbound request envelope written on the
// LSP wire.
package jsonrpc

import (
	"github.com/tidwall/gjson"
)

// Kind enumerates the JSON type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindFalse
	KindTrue
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value wraps a parsed JSON document without committing to a Go
// struct for it, for the editor protocol's loosely-typed params and
// for LSP results the daemon only inspects rather than deserializes
// fully (e.g. transform_lsp_result's method-specific reshaping).
type Value struct {
	res gjson.Result
}

// Parse parses raw JSON bytes into a Value. The input is not
// validated and no error is returned: invalid JSON yields whatever
// Value gjson makes of it (empty input is null, "not json" parses as
// a number). Callers check Kind() or Exists() rather than an error,
// matching how the rest of the daemon treats malformed frames as
// empty rather than fatal.
func Parse(raw []byte) Value {
	return Value{res: gjson.ParseBytes(raw)}
}

// ParseString is Parse for an already-decoded string.
func ParseString(raw string) Value {
	return Value{res: gjson.Parse(raw)}
}

// Exists reports whether the value is present (as opposed to missing
// from a lookup, e.g. Get on a field absent from its parent object).
func (v Value) Exists() bool {
	return v.res.Exists()
}

// Kind returns the JSON type of the value.
func (v Value) Kind() Kind {
	switch v.res.Type {
	case gjson.Null:
		return KindNull
	case gjson.False:
		return KindFalse
	case gjson.True:
		return KindTrue
	case gjson.Number:
		return KindNumber
	case gjson.String:
		return KindString
	case gjson.JSON:
		if v.res.IsArray() {
			return KindArray
		}
		return KindObject
	default:
		return KindNull
	}
}

// Get looks up a dotted path within an object or array value,
// following gjson path syntax.
func (v Value) Get(path string) Value {
	return Value{res: v.res.Get(path)}
}

// String returns the value as text: a string's contents, the literal
// text of a number or boolean, the raw JSON of an array or object,
// and "" for null or a missing value.
func (v Value) String() string {
	return v.res.String()
}

// Int returns the value as an int64: a number truncated, a numeric
// string parsed, true as 1, and 0 otherwise.
func (v Value) Int() int64 {
	return v.res.Int()
}

// Float returns the value as a float64: a number as is, a numeric
// string parsed, true as 1, and 0 otherwise.
func (v Value) Float() float64 {
	return v.res.Float()
}

// Bool returns the value as a bool: true for JSON true, a non-zero
// number, or a string strconv.ParseBool accepts as true; false
// otherwise.
func (v Value) Bool() bool {
	return v.res.Bool()
}

// Raw returns the exact raw JSON text this value was parsed from.
func (v Value) Raw() string {
	return v.res.Raw
}

// Array returns the elements of a JSON array. A null or missing value
// yields an empty slice; any other non-array value yields a
// one-element slice holding that value.
func (v Value) Array() []Value {
	elems := v.res.Array()
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = Value{res: e}
	}
	return out
}

// ForEachObject calls fn for every key/value pair of an object value,
// stopping early if fn returns false.
func (v Value) ForEachObject(fn func(key string, val Value) bool) {
	v.res.ForEach(func(key, value gjson.Result) bool {
		return fn(key.String(), Value{res: value})
	})
}
