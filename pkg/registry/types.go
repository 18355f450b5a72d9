// Package registry discovers exposed operations and indexes them by route.
package registry

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/morezero/operations-host/pkg/typename"
)

// Registration error codes.
const (
	CodeDuplicateOperation = "DUPLICATE_OPERATION"
	CodeDuplicateRoute     = "DUPLICATE_ROUTE"
	CodeInvalidSource      = "INVALID_SOURCE"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeInvalidDefault     = "INVALID_DEFAULT"
)

// RegistrationError is a configuration bug found while registering. It is
// never recovered at runtime.
type RegistrationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Route   string `json:"route,omitempty"`
}

func (e *RegistrationError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches another RegistrationError with the same code.
func (e *RegistrationError) Is(target error) bool {
	t, ok := target.(*RegistrationError)
	return ok && t.Code == e.Code
}

// NewRegistrationError creates a new RegistrationError.
func NewRegistrationError(code, route, format string, args ...any) *RegistrationError {
	return &RegistrationError{Code: code, Route: route, Message: fmt.Sprintf(format, args...)}
}

// ErrDuplicateOperation matches duplicate operation names on one route via errors.Is.
var ErrDuplicateOperation = &RegistrationError{Code: CodeDuplicateOperation}

// ErrDuplicateRoute matches route collisions between unrelated entries via errors.Is.
var ErrDuplicateRoute = &RegistrationError{Code: CodeDuplicateRoute}

// PanicError is returned by Invoke when the operation panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// ParamDecl names one wire parameter and optionally gives it a default.
type ParamDecl struct {
	name       string
	hasDefault bool
	def        any
}

// P declares a parameter name.
func P(name string) ParamDecl {
	return ParamDecl{name: name}
}

// Default gives the parameter a default value. A nil default is valid and
// distinct from having no default.
func (p ParamDecl) Default(v any) ParamDecl {
	p.hasDefault = true
	p.def = v
	return p
}

// ParamTable maps an operation name to the declarations of its wire
// parameters, in order. Context-injected parameters are not declared.
type ParamTable map[string][]ParamDecl

// ParamDeclarer is implemented by sources that name their parameters.
type ParamDeclarer interface {
	Params() ParamTable
}

// ParameterSpec is one formal parameter of an operation.
type ParameterSpec struct {
	Name         string
	Position     int
	WireIndex    int
	Type         reflect.Type
	Kind         typename.Kind
	TypeName     string
	HasDefault   bool
	DefaultValue any

	defaultValue reflect.Value
}

// Injected reports whether the host supplies this parameter from request state.
func (p *ParameterSpec) Injected() bool {
	return p.Kind == typename.KindContext
}

// Default returns the default as a value of the parameter's type.
func (p *ParameterSpec) Default() reflect.Value {
	if !p.defaultValue.IsValid() {
		return reflect.Zero(p.Type)
	}
	return p.defaultValue
}

// OperationSignature is the immutable identity of one exposed callable.
type OperationSignature struct {
	Name           string
	Container      string
	RoutePath      string
	Parameters     []*ParameterSpec
	ReturnType     reflect.Type
	ReturnTypeName string

	segments     []segment
	fn           reflect.Value
	hasResult    bool
	returnsError bool
}

// WireParameters returns the parameters bound from wire data, in order.
func (s *OperationSignature) WireParameters() []*ParameterSpec {
	out := make([]*ParameterSpec, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		if !p.Injected() {
			out = append(out, p)
		}
	}
	return out
}

// HasResult reports whether the operation returns a value besides an error.
func (s *OperationSignature) HasResult() bool { return s.hasResult }

// IsTemplate reports whether the route has {name} segments.
func (s *OperationSignature) IsTemplate() bool {
	for _, seg := range s.segments {
		if seg.param != "" {
			return true
		}
	}
	return false
}

// Match matches path against a template route and returns the segment
// values keyed by parameter name. Literals compare case-insensitively and
// values keep the case they arrived in.
func (s *OperationSignature) Match(path string) (map[string]string, bool) {
	parts := strings.FieldsFunc(path, isSeparator)
	if len(parts) != len(s.segments) {
		return nil, false
	}
	vals := map[string]string{}
	for i, seg := range s.segments {
		if seg.param != "" {
			vals[seg.param] = parts[i]
			continue
		}
		if !strings.EqualFold(parts[i], seg.literal) {
			return nil, false
		}
	}
	return vals, true
}

// Invoke calls the operation. A panic inside the operation is returned as a *PanicError.
func (s *OperationSignature) Invoke(args []reflect.Value) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: stack()}
		}
	}()

	out := s.fn.Call(args)
	if s.returnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if s.hasResult {
		return out[0].Interface(), nil
	}
	return nil, nil
}

type segment struct {
	literal string
	param   string
}
