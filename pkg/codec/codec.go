// Package codec serializes operation results and bridge envelopes.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"
)

const logPrefix = "codec:codec"

// Content types.
const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeYAML = "application/yaml; charset=utf-8"
)

// Serializer writes a value in one wire format.
type Serializer interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
}

// JSON is the default serializer.
var JSON Serializer = jsonSerializer{}

// YAML serializes with gopkg.in/yaml.v3.
var YAML Serializer = yamlSerializer{}

type jsonSerializer struct{}

func (jsonSerializer) ContentType() string { return ContentTypeJSON }

// Marshal encodes without HTML escaping so text round-trips byte for byte.
func (jsonSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%s - json encode: %w", logPrefix, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type yamlSerializer struct{}

func (yamlSerializer) ContentType() string { return ContentTypeYAML }

func (yamlSerializer) Marshal(v any) (out []byte, err error) {
	// yaml.v3 panics on values it cannot represent, such as channels.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s - yaml encode: %v", logPrefix, p)
		}
	}()
	out, err = yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - yaml encode: %w", logPrefix, err)
	}
	return out, nil
}

var yamlTypes = map[string]bool{
	"application/yaml":   true,
	"application/x-yaml": true,
	"text/yaml":          true,
	"text/x-yaml":        true,
}

// Negotiate picks a serializer from an Accept header. JSON is used unless a
// YAML media type is listed before any JSON one.
func Negotiate(accept string) Serializer {
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if yamlTypes[mt] {
			return YAML
		}
		if mt == "application/json" {
			return JSON
		}
	}
	return JSON
}

// EncodePayload serializes an envelope to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return JSON.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s - decode payload: %w", logPrefix, err)
	}
	return nil
}
