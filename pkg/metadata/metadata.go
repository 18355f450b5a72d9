// Package metadata builds the API metadata document consumed by client
// proxy generators.
package metadata

import (
	"github.com/morezero/operations-host/pkg/registry"
)

// ParameterDescriptor describes one wire parameter.
type ParameterDescriptor struct {
	Name            string `json:"name" yaml:"name"`
	Type            string `json:"type" yaml:"type"`
	DefaultValue    any    `json:"defaultValue" yaml:"defaultValue"`
	HasDefaultValue bool   `json:"hasDefaultValue" yaml:"hasDefaultValue"`
}

// OperationDescriptor describes one operation.
type OperationDescriptor struct {
	Name       string                `json:"name" yaml:"name"`
	Route      string                `json:"route" yaml:"route"`
	Parameters []ParameterDescriptor `json:"parameters" yaml:"parameters"`
	ReturnType string                `json:"returnType" yaml:"returnType"`
}

// Document is the metadata of every registered operation.
type Document struct {
	Version    string                `json:"version" yaml:"version"`
	Operations []OperationDescriptor `json:"operations" yaml:"operations"`
}

// Build snapshots reg. Operations keep registration order and
// context-injected parameters are left out.
func Build(reg *registry.Registry, version string) *Document {
	ops := reg.Operations()
	doc := &Document{
		Version:    version,
		Operations: make([]OperationDescriptor, 0, len(ops)),
	}
	for _, sig := range ops {
		doc.Operations = append(doc.Operations, Describe(sig))
	}
	return doc
}

// Describe converts one signature.
func Describe(sig *registry.OperationSignature) OperationDescriptor {
	wire := sig.WireParameters()
	d := OperationDescriptor{
		Name:       sig.Name,
		Route:      sig.RoutePath,
		Parameters: make([]ParameterDescriptor, 0, len(wire)),
		ReturnType: sig.ReturnTypeName,
	}
	for _, p := range wire {
		d.Parameters = append(d.Parameters, ParameterDescriptor{
			Name:            p.Name,
			Type:            p.TypeName,
			DefaultValue:    p.DefaultValue,
			HasDefaultValue: p.HasDefault,
		})
	}
	return d
}

// Find returns the descriptor for an operation name, if present.
func (d *Document) Find(name string) (OperationDescriptor, bool) {
	for _, op := range d.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return OperationDescriptor{}, false
}
