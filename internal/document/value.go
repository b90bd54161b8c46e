// Package document implements the dynamic value type stored and queried by
// the broker. Stored values arrive as arbitrary JSON; rather than carry them
// around as interface{}, they are decoded into a closed tagged union so the
// rest of the broker can pattern-match on Kind instead of type-asserting.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the tag of a Value's variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-like document: exactly one of its fields is meaningful,
// selected by Kind. The zero Value is Null.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	String string
	Array  []Value
	Object map[string]Value
}

// Null is the broker's "missing key" and "deleted value" sentinel.
var Null = Value{Kind: KindNull}

func NewBool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func NewNumber(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func NewString(s string) Value { return Value{Kind: KindString, String: s} }

func NewArray(items ...Value) Value {
	return Value{Kind: KindArray, Array: items}
}

func NewObject(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindObject, Object: fields}
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Field returns the named field of an object value, or Null if v is not an
// object or the field is absent.
func (v Value) Field(name string) Value {
	if v.Kind != KindObject {
		return Null
	}
	if f, ok := v.Object[name]; ok {
		return f
	}
	return Null
}

// Equal reports scalar-and-structural equality, used by the query matcher.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindNumber:
		return v.Number == other.Number
	case KindString:
		return v.String == other.String
	case KindArray:
		if len(v.Array) != len(other.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Object) != len(other.Object) {
			return false
		}
		for k, fv := range v.Object {
			ov, ok := other.Object[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindString:
		return json.Marshal(v.String)
	case KindArray:
		if v.Array == nil {
			// NewArray() with no items leaves Array nil, which encoding/json
			// would write as null; an empty array must stay an array.
			return []byte("[]"), nil
		}
		return json.Marshal(v.Array)
	case KindObject:
		// sort keys for stable, diffable output (the file-tree adapter
		// pretty-prints values, so stable key order matters for tests).
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.Object[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("document: unknown kind %v", v.Kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts the output of encoding/json's default decode
// (map[string]interface{}, []interface{}, float64, string, bool, nil) into a Value.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null
	case bool:
		return NewBool(t)
	case float64:
		return NewNumber(t)
	case string:
		return NewString(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Value{Kind: KindArray, Array: items}
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = FromAny(e)
		}
		return Value{Kind: KindObject, Object: fields}
	default:
		return Null
	}
}
