// Package typename renders Go types as canonical, language-independent names.
//
// The names are consumed by the metadata document and by client proxy
// generators, so the output for a given type never changes:
//
//	[]map[int32]any          -> List<Dictionary<Int32,Object>>
//	map[int32]map[int32]any  -> Dictionary<Int32,Dictionary<Int32,Object>>
//	Tuple3[int32,string,any] -> Tuple<Int32,String,Object>
//	func(int32) string       -> Func<Int32,String>
package typename

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Kind classifies a type the way the binder and the metadata document see it.
type Kind int

const (
	KindPrimitive Kind = iota
	KindString
	KindContainer
	KindMap
	KindTuple
	KindFunction
	KindObject
	KindContext
)

var kindNames = [...]string{
	KindPrimitive: "primitive",
	KindString:    "string",
	KindContainer: "container",
	KindMap:       "map",
	KindTuple:     "tuple",
	KindFunction:  "function",
	KindObject:    "object",
	KindContext:   "context",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Namer lets a type choose its own canonical name.
type Namer interface {
	TypeName() string
}

// Injected marks types the host supplies from request state instead of wire data.
type Injected interface {
	InjectedContext()
}

// Void is the name reported for operations without a result.
const Void = "Void"

// Injected types supplied by the host without implementing Injected.
var (
	ContextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	HeaderType  = reflect.TypeOf(http.Header(nil))
)

var (
	namerType    = reflect.TypeOf((*Namer)(nil)).Elem()
	injectedType = reflect.TypeOf((*Injected)(nil)).Elem()
	tupleType    = reflect.TypeOf((*tuple)(nil)).Elem()
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

var primitiveNames = map[reflect.Kind]string{
	reflect.Bool:    "Boolean",
	reflect.Int8:    "SByte",
	reflect.Uint8:   "Byte",
	reflect.Int16:   "Int16",
	reflect.Uint16:  "UInt16",
	reflect.Int32:   "Int32",
	reflect.Uint32:  "UInt32",
	reflect.Int:     "Int64",
	reflect.Int64:   "Int64",
	reflect.Uint:    "UInt64",
	reflect.Uint64:  "UInt64",
	reflect.Uintptr: "UInt64",
	reflect.Float32: "Single",
	reflect.Float64: "Double",
	reflect.String:  "String",
}

// IsContext reports whether values of t are injected from request state.
func IsContext(t reflect.Type) bool {
	if t == nil {
		return false
	}
	return t == ContextType || t == HeaderType || t.Implements(injectedType)
}

// KindOf classifies t.
func KindOf(t reflect.Type) Kind {
	if IsContext(t) {
		return KindContext
	}
	t = deref(t)
	if t == timeType || t == durationType {
		return KindPrimitive
	}
	if t.Implements(tupleType) {
		return KindTuple
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Slice, reflect.Array:
		return KindContainer
	case reflect.Map:
		return KindMap
	case reflect.Func:
		return KindFunction
	case reflect.Struct, reflect.Interface:
		return KindObject
	}
	if _, ok := primitiveNames[t.Kind()]; ok {
		return KindPrimitive
	}
	return KindObject
}

var cache sync.Map

// Format renders t as its canonical name. A nil type renders as Void. A
// named type that refers to itself renders by its name at the point of
// recursion, e.g. type Tree map[string]Tree is Dictionary<String,Tree>.
func Format(t reflect.Type) string {
	if t == nil {
		return Void
	}
	if s, ok := cache.Load(t); ok {
		return s.(string)
	}
	f := &formatter{visiting: map[reflect.Type]bool{}, done: map[reflect.Type]string{}}
	s := f.format(t)
	if !f.cyclic {
		for typ, name := range f.done {
			cache.Store(typ, name)
		}
	}
	cache.Store(t, s)
	return s
}

// formatter carries one Format call. Inner names computed under a cycle
// depend on where the walk started, so they are cached only when no
// cycle was seen.
type formatter struct {
	visiting map[reflect.Type]bool
	done     map[reflect.Type]string
	cyclic   bool
}

func (f *formatter) format(t reflect.Type) string {
	if t == nil {
		return Void
	}
	if s, ok := cache.Load(t); ok {
		return s.(string)
	}
	if s, ok := f.done[t]; ok {
		return s
	}
	if f.visiting[t] {
		f.cyclic = true
		if t.Name() != "" {
			return baseName(t.Name())
		}
		return "Object"
	}
	f.visiting[t] = true
	s := f.render(t)
	delete(f.visiting, t)
	f.done[t] = s
	return s
}

func (f *formatter) render(t reflect.Type) string {
	if IsContext(t) {
		return FullName(t)
	}
	if t.Kind() == reflect.Pointer {
		return f.format(t.Elem())
	}
	if t.Kind() != reflect.Interface && t.Implements(namerType) {
		return reflect.Zero(t).Interface().(Namer).TypeName()
	}
	switch t {
	case timeType:
		return "DateTime"
	case durationType:
		return "TimeSpan"
	}
	if t.Implements(tupleType) {
		args := make([]reflect.Type, t.NumField())
		for i := range args {
			args[i] = t.Field(i).Type
		}
		return f.generic("Tuple", args)
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "List<" + f.format(t.Elem()) + ">"
	case reflect.Map:
		return "Dictionary<" + f.format(t.Key()) + "," + f.format(t.Elem()) + ">"
	case reflect.Func:
		args := make([]reflect.Type, 0, t.NumIn()+t.NumOut())
		for i := 0; i < t.NumIn(); i++ {
			args = append(args, t.In(i))
		}
		for i := 0; i < t.NumOut(); i++ {
			args = append(args, t.Out(i))
		}
		return f.generic("Func", args)
	case reflect.Interface:
		return "Object"
	case reflect.Struct:
		if t.Name() == "" {
			return "Object"
		}
		return baseName(t.Name())
	}
	if name, ok := primitiveNames[t.Kind()]; ok {
		return name
	}
	return baseName(t.Name())
}

func (f *formatter) generic(name string, args []reflect.Type) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = f.format(a)
	}
	return name + "<" + strings.Join(parts, ",") + ">"
}

// deref strips pointers, stopping at a pointer type that points to itself.
func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer && t.Elem() != t {
		t = t.Elem()
	}
	return t
}

// FullName renders t with its import path, e.g. "net/http.Header".
func FullName(t reflect.Type) string {
	t = deref(t)
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + baseName(t.Name())
}

// baseName drops generic instantiation arguments from a type name.
func baseName(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}
