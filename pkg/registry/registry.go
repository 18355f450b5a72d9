package registry

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/morezero/operations-host/pkg/typename"
)

const logPrefix = "registry:registry"

const declarerMethod = "Params"

// Option tunes one RegisterType call.
type Option func(*registerOptions)

type registerOptions struct {
	withContainer bool
}

// WithContainerName inserts the source's type name between the prefix and
// the operation name: <prefix>/<Type>/<operation>.
func WithContainerName() Option {
	return func(o *registerOptions) { o.withContainer = true }
}

// Registry owns the operation signatures of one host. Writers are serialized
// and publish a new snapshot; readers load the current snapshot without locking.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	ops       []*OperationSignature
	byRoute   map[string]*OperationSignature
	templates []*OperationSignature
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byRoute: map[string]*OperationSignature{}})
	return r
}

// RegisterType exposes every exported method of source. source must be a
// struct with no fields (or a pointer to one). Registration is all or nothing.
//
// An empty routePrefix yields /<Type>/<operation>; any explicit prefix,
// including "/", yields <prefix>/<operation>.
func (r *Registry) RegisterType(source any, routePrefix string, opts ...Option) ([]*OperationSignature, error) {
	o := registerOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if source == nil {
		return nil, NewRegistrationError(CodeInvalidSource, "", "source is nil")
	}
	v := reflect.ValueOf(source)
	t := v.Type()
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return nil, NewRegistrationError(CodeInvalidSource, "", "%s is not a struct type", t)
	}
	if base.NumField() != 0 {
		return nil, NewRegistrationError(CodeInvalidSource, "", "%s has fields; operation sources must carry no instance state", t)
	}

	var table ParamTable
	declarer, isDeclarer := source.(ParamDeclarer)
	if isDeclarer {
		table = declarer.Params()
	}

	container := base.Name()
	var built []*OperationSignature
	seen := map[string]bool{}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if isDeclarer && m.Name == declarerMethod {
			continue
		}
		route := routeFor(routePrefix, container, m.Name, o.withContainer)
		sig, err := buildSignature(m.Name, container, route, v.Method(i), table[m.Name])
		if err != nil {
			return nil, err
		}
		built = append(built, sig)
		seen[m.Name] = true
	}
	for name := range table {
		if !seen[name] {
			return nil, NewRegistrationError(CodeInvalidSignature, "", "%s declares parameters for unknown operation %q", container, name)
		}
	}

	if err := r.add(built); err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - registered %d operations from %s", logPrefix, len(built), container))
	return built, nil
}

// MustRegisterType is RegisterType for bootstrap code; it panics on error.
func (r *Registry) MustRegisterType(source any, routePrefix string, opts ...Option) []*OperationSignature {
	sigs, err := r.RegisterType(source, routePrefix, opts...)
	if err != nil {
		panic(err)
	}
	return sigs
}

// RegisterFunc exposes a single function at path. The path may contain
// {name} segments whose values bind to the parameter of the same name.
func (r *Registry) RegisterFunc(path string, fn any, params ...ParamDecl) (*OperationSignature, error) {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, NewRegistrationError(CodeInvalidSource, path, "%s: inline source is not a function", path)
	}
	route := NormalizePath(path)
	if route == "/" {
		return nil, NewRegistrationError(CodeInvalidSource, path, "inline function needs a non-empty path")
	}
	sig, err := buildSignature(funcName(path), "", route, fv, params)
	if err != nil {
		return nil, err
	}
	if err := r.add([]*OperationSignature{sig}); err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - registered inline function at %s", logPrefix, route))
	return sig, nil
}

// Resolve returns the operation registered at an exact normalized path.
func (r *Registry) Resolve(normalizedPath string) *OperationSignature {
	return r.snap.Load().byRoute[normalizedPath]
}

// MatchTemplate returns the first template route matching path, in
// registration order, with its segment values.
func (r *Registry) MatchTemplate(path string) (*OperationSignature, map[string]string) {
	for _, sig := range r.snap.Load().templates {
		if vals, ok := sig.Match(path); ok {
			return sig, vals
		}
	}
	return nil, nil
}

// Operations returns every signature in registration order.
func (r *Registry) Operations() []*OperationSignature {
	ops := r.snap.Load().ops
	return append([]*OperationSignature(nil), ops...)
}

// Len is the number of registered operations.
func (r *Registry) Len() int {
	return len(r.snap.Load().ops)
}

func (r *Registry) add(sigs []*OperationSignature) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := &snapshot{
		ops:       append(append([]*OperationSignature(nil), cur.ops...), sigs...),
		byRoute:   make(map[string]*OperationSignature, len(cur.byRoute)+len(sigs)),
		templates: append([]*OperationSignature(nil), cur.templates...),
	}
	for k, v := range cur.byRoute {
		next.byRoute[k] = v
	}
	templateRoutes := map[string]*OperationSignature{}
	for _, t := range cur.templates {
		templateRoutes[t.RoutePath] = t
	}

	for _, sig := range sigs {
		index := next.byRoute
		if sig.IsTemplate() {
			index = templateRoutes
		}
		if prev, ok := index[sig.RoutePath]; ok {
			if prev.Name == sig.Name {
				return NewRegistrationError(CodeDuplicateOperation, sig.RoutePath, "operation %q is already registered at %s", sig.Name, sig.RoutePath)
			}
			return NewRegistrationError(CodeDuplicateRoute, sig.RoutePath, "route %s is already taken by %q", sig.RoutePath, prev.Name)
		}
		index[sig.RoutePath] = sig
		if sig.IsTemplate() {
			next.templates = append(next.templates, sig)
		}
	}

	r.snap.Store(next)
	return nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func buildSignature(name, container, route string, fn reflect.Value, decls []ParamDecl) (*OperationSignature, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, NewRegistrationError(CodeInvalidSignature, route, "%s: variadic operations are not supported", name)
	}

	sig := &OperationSignature{
		Name:      name,
		Container: container,
		RoutePath: route,
		fn:        fn,
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			sig.returnsError = true
		} else {
			sig.hasResult = true
			sig.ReturnType = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, NewRegistrationError(CodeInvalidSignature, route, "%s: second result must be error", name)
		}
		sig.hasResult = true
		sig.returnsError = true
		sig.ReturnType = ft.Out(0)
	default:
		return nil, NewRegistrationError(CodeInvalidSignature, route, "%s: too many results", name)
	}
	sig.ReturnTypeName = typename.Format(sig.ReturnType)

	wire := 0
	names := map[string]bool{}
	for i := 0; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		p := &ParameterSpec{
			Position:  i,
			WireIndex: -1,
			Type:      pt,
			Kind:      typename.KindOf(pt),
			TypeName:  typename.Format(pt),
		}
		if p.Injected() {
			p.Name = contextParamName(pt)
			sig.Parameters = append(sig.Parameters, p)
			continue
		}

		p.WireIndex = wire
		p.Name = fmt.Sprintf("arg%d", wire)
		if wire < len(decls) {
			d := decls[wire]
			if d.name != "" {
				p.Name = d.name
			}
			if d.hasDefault {
				dv, ok := convertDefault(d.def, pt)
				if !ok {
					return nil, NewRegistrationError(CodeInvalidDefault, route, "%s: default %v (%T) does not fit parameter %s of type %s", name, d.def, d.def, p.Name, p.TypeName)
				}
				p.HasDefault = true
				p.defaultValue = dv
				if d.def != nil {
					p.DefaultValue = dv.Interface()
				}
			}
		}
		key := strings.ToLower(p.Name)
		if names[key] {
			return nil, NewRegistrationError(CodeInvalidSignature, route, "%s: parameter name %q is declared twice", name, p.Name)
		}
		names[key] = true
		wire++
		sig.Parameters = append(sig.Parameters, p)
	}
	if len(decls) > wire {
		return nil, NewRegistrationError(CodeInvalidSignature, route, "%s: %d parameters declared but the operation takes %d", name, len(decls), wire)
	}

	sig.segments = parseSegments(route)
	for _, seg := range sig.segments {
		if seg.param != "" && !names[seg.param] {
			return nil, NewRegistrationError(CodeInvalidSignature, route, "%s: route segment {%s} names no parameter", name, seg.param)
		}
	}
	return sig, nil
}

func contextParamName(t reflect.Type) string {
	switch {
	case t == typename.HeaderType:
		return "header"
	case t == typename.ContextType:
		return "ctx"
	}
	return "requestContext"
}

// convertDefault converts a declared default to the parameter type. Only
// assignable values, numeric to numeric without loss of the integer part and
// string-kind to string-kind are accepted. A nil default is the zero value.
func convertDefault(def any, t reflect.Type) (reflect.Value, bool) {
	if def == nil {
		return reflect.Zero(t), true
	}
	dv := reflect.ValueOf(def)
	if dv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(dv)
		return out, true
	}
	switch {
	case isNumber(dv.Kind()) && isNumber(t.Kind()):
		if isFloat(dv.Kind()) && !isFloat(t.Kind()) {
			if f := dv.Float(); f != math.Trunc(f) {
				return reflect.Value{}, false
			}
		}
		return dv.Convert(t), true
	case dv.Kind() == reflect.String && t.Kind() == reflect.String:
		return dv.Convert(t), true
	}
	return reflect.Value{}, false
}

func isNumber(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || isFloat(k)
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func routeFor(prefix, container, op string, withContainer bool) string {
	parts := []string{prefix}
	if withContainer || prefix == "" {
		parts = append(parts, container)
	}
	parts = append(parts, op)
	return NormalizePath(strings.Join(parts, "/"))
}

// funcName is the last literal segment of an inline function's path.
func funcName(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	for i := len(parts) - 1; i >= 0; i-- {
		if !strings.HasPrefix(parts[i], "{") {
			return parts[i]
		}
	}
	return strings.Join(parts, "/")
}

// NormalizePath lower-cases p, collapses repeated slashes and removes the
// trailing slash. The result always starts with "/".
func NormalizePath(p string) string {
	return "/" + strings.Join(splitPath(p), "/")
}

func splitPath(p string) []string {
	return strings.FieldsFunc(strings.ToLower(p), isSeparator)
}

func isSeparator(r rune) bool { return r == '/' || r == '\\' }

func parseSegments(route string) []segment {
	parts := splitPath(route)
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if len(part) > 2 && strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			segs[i] = segment{param: part[1 : len(part)-1]}
			continue
		}
		segs[i] = segment{literal: part}
	}
	return segs
}

func stack() []byte {
	return debug.Stack()
}
