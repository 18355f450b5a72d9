package codec

import (
	"strings"
	"testing"

	"github.com/morezero/operations-host/pkg/typename"
	"github.com/morezero/operations-host/pkg/value"
)

const codecTestPrefix = "codec:codec_test"

func TestJSONMarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    string
		wantErr bool
	}{
		{name: "string with ampersand", input: "salt & pepper", want: `"salt & pepper"`},
		{name: "nil", input: nil, want: "null"},
		{name: "tuple", input: typename.NewTuple2(1, "x"), want: `{"Item1":1,"Item2":"x"}`},
		{name: "map", input: map[string]int{"b": 2, "a": 1}, want: `{"a":1,"b":2}`},
		{name: "channel is not serializable", input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := JSON.Marshal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s - expected error but got nil", codecTestPrefix)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
			}
			if string(data) != tt.want {
				t.Errorf("%s - Marshal() = %s, want %s", codecTestPrefix, data, tt.want)
			}
		})
	}
}

func TestYAMLMarshal(t *testing.T) {
	v, err := value.Parse(`{"name":"ada","tags":["x"]}`)
	if err != nil {
		t.Fatalf("%s - Parse error: %v", codecTestPrefix, err)
	}
	data, err := YAML.Marshal(v)
	if err != nil {
		t.Fatalf("%s - YAML Marshal error: %v", codecTestPrefix, err)
	}
	out := string(data)
	if !strings.Contains(out, "name: ada") || !strings.Contains(out, "- x") {
		t.Errorf("%s - YAML = %q", codecTestPrefix, out)
	}

	if _, err := YAML.Marshal(make(chan int)); err == nil {
		t.Errorf("%s - expected error for channel", codecTestPrefix)
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		want   Serializer
	}{
		{"", JSON},
		{"*/*", JSON},
		{"application/yaml", YAML},
		{"text/html, application/x-yaml;q=0.9", YAML},
		{"application/json, application/yaml", JSON},
		{"garbage;;", JSON},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.accept); got != tt.want {
			t.Errorf("%s - Negotiate(%q) = %s, want %s", codecTestPrefix, tt.accept, got.ContentType(), tt.want.ContentType())
		}
	}
}

func TestDecodePayload(t *testing.T) {
	var target struct {
		ID string `json:"id"`
	}
	if err := DecodePayload([]byte(`{"id":"x1"}`), &target); err != nil || target.ID != "x1" {
		t.Errorf("%s - DecodePayload = %+v, %v", codecTestPrefix, target, err)
	}
	if err := DecodePayload([]byte(`{invalid}`), &target); err == nil {
		t.Errorf("%s - expected error for invalid JSON", codecTestPrefix)
	}
}
