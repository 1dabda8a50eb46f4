package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ValueKind enumerates the shapes an Extra value may take.
type ValueKind int

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindBool
	KindMap
)

// Value is one entry in an item's extra bag. Exactly one of the fields is
// meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Map  Extra
}

// String builds a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number builds a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Map builds a nested value.
func Map(m Extra) Value { return Value{Kind: KindMap, Map: m} }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Arrays and null are rejected;
// Extra.UnmarshalJSON drops such entries instead of failing the item.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return eris.New("extra: empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "extra: string")
		}
		*v = String(s)
	case '{':
		var m Extra
		if err := json.Unmarshal(b, &m); err != nil {
			return eris.Wrap(err, "extra: map")
		}
		*v = Map(m)
	case 't', 'f':
		var bv bool
		if err := json.Unmarshal(b, &bv); err != nil {
			return eris.Wrap(err, "extra: bool")
		}
		*v = Bool(bv)
	case 'n', '[':
		return eris.Errorf("extra: unsupported value %s", string(b))
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return eris.Errorf("extra: unsupported value %s", string(b))
		}
		*v = Number(n)
	}
	return nil
}

// Extra is the adapter-specific metadata bag carried on an item.
type Extra map[string]Value

// UnmarshalJSON decodes the bag, skipping entries whose shape is not one of
// the supported kinds.
func (e *Extra) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "extra: decode")
	}
	out := make(Extra, len(raw))
	for k, msg := range raw {
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			continue
		}
		out[k] = v
	}
	*e = out
	return nil
}

// Clone deep-copies the bag.
func (e Extra) Clone() Extra {
	if e == nil {
		return nil
	}
	out := make(Extra, len(e))
	for k, v := range e {
		if v.Kind == KindMap {
			v.Map = v.Map.Clone()
		}
		out[k] = v
	}
	return out
}

// Str returns the string stored under key, if any.
func (e Extra) Str(key string) (string, bool) {
	v, ok := e[key]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Num returns the number stored under key, if any.
func (e Extra) Num(key string) (float64, bool) {
	v, ok := e[key]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// Sub returns the nested map stored under key, if any.
func (e Extra) Sub(key string) (Extra, bool) {
	v, ok := e[key]
	if !ok || v.Kind != KindMap {
		return nil, false
	}
	return v.Map, true
}
