package flow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ValueKind enumerates what a Value holds.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindBytes  ValueKind = "bytes"
	KindMap    ValueKind = "map"
)

// Value is a typed execution variable. Exactly one payload field is
// meaningful, selected by Kind.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	raw  []byte
	m    map[string]Value
}

func Null() Value { return Value{kind: KindNull} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Bytes(p []byte) Value { return Value{kind: KindBytes, raw: append([]byte(nil), p...)} }
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind returns KindNull for the zero Value.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// FromInterface converts a decoded JSON-like value. Unsupported types fail.
func FromInterface(in interface{}) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case []byte:
		return Bytes(t), nil
	case map[string]Value:
		return Map(t), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, raw := range t {
			val, err := FromInterface(raw)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = val
		}
		return Value{kind: KindMap, m: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported variable type %T", in)
	}
}

// Equal compares kind and payload, recursing into maps.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindBytes:
		return string(v.raw) == string(o.raw)
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return true
}

type wireValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var (
		payload interface{}
		kind    = v.Kind()
	)
	switch kind {
	case KindString:
		payload = v.str
	case KindNumber:
		payload = v.num
	case KindBool:
		payload = v.b
	case KindBytes:
		payload = base64.StdEncoding.EncodeToString(v.raw)
	case KindMap:
		// encoding/json sorts map keys, so output is deterministic.
		payload = v.m
	case KindNull:
		return json.Marshal(wireValue{Kind: KindNull})
	default:
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: kind, Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return v.decode(w)
}

func (v *Value) decode(w wireValue) error {
	out := Value{kind: w.Kind}
	var err error
	switch w.Kind {
	case KindNull, "":
		out.kind = KindNull
	case KindString:
		err = json.Unmarshal(w.Value, &out.str)
	case KindNumber:
		err = json.Unmarshal(w.Value, &out.num)
	case KindBool:
		err = json.Unmarshal(w.Value, &out.b)
	case KindBytes:
		var s string
		if err = json.Unmarshal(w.Value, &s); err == nil {
			out.raw, err = base64.StdEncoding.DecodeString(s)
		}
	case KindMap:
		err = json.Unmarshal(w.Value, &out.m)
	default:
		return fmt.Errorf("unknown value kind %q", w.Kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s value: %w", w.Kind, err)
	}
	*v = out
	return nil
}
