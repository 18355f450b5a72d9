// Package value holds the untyped intermediate form of wire data.
//
// A Value is one of Null, Bool, Number, String, Sequence or Mapping. JSON is
// parsed with gjson; numbers keep their literal text so that converting into
// a typed target never loses precision on the way.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

const logPrefix = "value:value"

// Kind is the tag of a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	}
	return "unknown"
}

// Value is a tagged variant. The zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	text   string
	seq    []Value
	keys   []string
	fields map[string]Value
}

// TypeName reports Value as an open-ended object slot.
func (Value) TypeName() string { return "Object" }

// Parse parses JSON text into a Value.
func Parse(raw string) (Value, error) {
	if !gjson.Valid(raw) {
		return Value{}, fmt.Errorf("%s - invalid JSON", logPrefix)
	}
	return FromResult(gjson.Parse(raw)), nil
}

// FromResult converts a gjson result.
func FromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return NewBool(false)
	case gjson.True:
		return NewBool(true)
	case gjson.Number:
		return Value{kind: Number, text: r.Raw}
	case gjson.String:
		return NewString(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			v := Value{kind: Sequence, seq: []Value{}}
			r.ForEach(func(_, item gjson.Result) bool {
				v.seq = append(v.seq, FromResult(item))
				return true
			})
			return v
		}
		v := NewMapping()
		r.ForEach(func(key, item gjson.Result) bool {
			v.Set(key.Str, FromResult(item))
			return true
		})
		return v
	}
	return Value{}
}

// NewBool returns a Bool value.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewNumber returns a Number value.
func NewNumber(f float64) Value {
	return Value{kind: Number, text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// NewString returns a String value.
func NewString(s string) Value { return Value{kind: String, text: s} }

// NewSequence returns a Sequence of items.
func NewSequence(items ...Value) Value {
	return Value{kind: Sequence, seq: append([]Value{}, items...)}
}

// NewMapping returns an empty Mapping.
func NewMapping() Value {
	return Value{kind: Mapping, fields: map[string]Value{}}
}

// Set stores key on a Mapping; a repeated key keeps its first position and the last value.
func (v *Value) Set(key string, item Value) {
	if v.kind != Mapping {
		return
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = item
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null or the zero Value.
func (v Value) IsNull() bool { return v.kind == Null }

// Bool returns the payload of a Bool; it is false for every other kind.
func (v Value) Bool() bool { return v.b }

// Keys returns the mapping keys in first-seen order.
func (v Value) Keys() []string { return append([]string(nil), v.keys...) }

// Len is the number of items of a Sequence or fields of a Mapping.
func (v Value) Len() int {
	switch v.kind {
	case Sequence:
		return len(v.seq)
	case Mapping:
		return len(v.keys)
	}
	return 0
}

// Index returns item i of a Sequence.
func (v Value) Index(i int) Value {
	if v.kind != Sequence || i < 0 || i >= len(v.seq) {
		return Value{}
	}
	return v.seq[i]
}

// Get returns a field of a Mapping.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Mapping {
		return Value{}, false
	}
	item, ok := v.fields[key]
	return item, ok
}

// Text returns the literal text of a String or Number.
func (v Value) Text() string { return v.text }

// Float returns a Number as float64.
func (v Value) Float() (float64, error) {
	if v.kind != Number {
		return 0, fmt.Errorf("%s - %s is not a number", logPrefix, v.kind)
	}
	return strconv.ParseFloat(v.text, 64)
}

// Interface converts the value to plain Go data in the shape encoding/json produces.
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		f, _ := strconv.ParseFloat(v.text, 64)
		return f
	case String:
		return v.text
	case Sequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case Mapping:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON writes the value back as JSON, keeping mapping key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Number:
		buf.WriteString(v.text)
	case String:
		if err := quote(buf, v.text); err != nil {
			return err
		}
	case Sequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Mapping:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := quote(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// quote writes s as a JSON string without HTML escaping.
func quote(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// UnmarshalJSON parses JSON into the value.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML lets YAML encoders see the plain data.
func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}
