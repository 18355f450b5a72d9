package value

import (
	"encoding/json"
	"reflect"
	"testing"
)

const valueTestPrefix = "value:value_test"

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"null", Null},
		{"true", Bool},
		{"false", Bool},
		{"12.5", Number},
		{`"hi"`, String},
		{"[1,2]", Sequence},
		{`{"a":1}`, Mapping},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("%s - Parse(%q) error: %v", valueTestPrefix, tt.raw, err)
			}
			if v.Kind() != tt.want {
				t.Errorf("%s - Kind() = %v, want %v", valueTestPrefix, v.Kind(), tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("{nope"); err == nil {
		t.Fatalf("%s - expected error for invalid JSON", valueTestPrefix)
	}
}

func TestValue_Interface(t *testing.T) {
	v, err := Parse(`{"a":[1,"x",null],"b":{"c":true}}`)
	if err != nil {
		t.Fatalf("%s - Parse error: %v", valueTestPrefix, err)
	}
	want := map[string]any{
		"a": []any{1.0, "x", nil},
		"b": map[string]any{"c": true},
	}
	if got := v.Interface(); !reflect.DeepEqual(got, want) {
		t.Errorf("%s - Interface() = %#v, want %#v", valueTestPrefix, got, want)
	}
}

func TestValue_MarshalKeepsOrderAndNumbers(t *testing.T) {
	raw := `{"z":12345678901234567890,"a":"q&r","m":[true,null]}`
	v, err := Parse(raw)
	if err != nil {
		t.Fatalf("%s - Parse error: %v", valueTestPrefix, err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("%s - Marshal error: %v", valueTestPrefix, err)
	}
	if string(out) != `{"z":12345678901234567890,"a":"q&r","m":[true,null]}` {
		t.Errorf("%s - Marshal = %s", valueTestPrefix, out)
	}
}

func TestValue_SetDuplicateKeepsLast(t *testing.T) {
	v := NewMapping()
	v.Set("k", NewString("one"))
	v.Set("other", NewBool(true))
	v.Set("k", NewString("two"))

	if v.Len() != 2 {
		t.Fatalf("%s - Len() = %d, want 2", valueTestPrefix, v.Len())
	}
	got, ok := v.Get("k")
	if !ok || got.Text() != "two" {
		t.Errorf("%s - Get(k) = %v, want two", valueTestPrefix, got.Text())
	}
	if keys := v.Keys(); keys[0] != "k" || keys[1] != "other" {
		t.Errorf("%s - Keys() = %v", valueTestPrefix, keys)
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var holder struct {
		Payload Value `json:"payload"`
	}
	if err := json.Unmarshal([]byte(`{"payload":[1,2,3]}`), &holder); err != nil {
		t.Fatalf("%s - Unmarshal error: %v", valueTestPrefix, err)
	}
	if holder.Payload.Kind() != Sequence || holder.Payload.Len() != 3 {
		t.Errorf("%s - payload = %v", valueTestPrefix, holder.Payload.Interface())
	}
	f, err := holder.Payload.Index(2).Float()
	if err != nil || f != 3 {
		t.Errorf("%s - Index(2) = %v, %v", valueTestPrefix, f, err)
	}
}
