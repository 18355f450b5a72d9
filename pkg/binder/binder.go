// Package binder turns named wire values into typed operation arguments.
//
// For each wire parameter the value is looked up by name in the request's
// merged value set (route segments, then query, then form, then JSON body
// fields). When nothing matches, an operation with exactly one wire
// parameter receives the whole JSON body; an operation with several wire
// parameters and a JSON array body binds array items by position. After
// that the declared default applies, and otherwise the value is missing.
package binder

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/morezero/operations-host/pkg/registry"
	"github.com/morezero/operations-host/pkg/reqctx"
	"github.com/morezero/operations-host/pkg/typename"
	"github.com/morezero/operations-host/pkg/value"
)

const logPrefix = "binder:binder"

// BindingError means a parameter could not be materialized. The operation is
// not invoked.
type BindingError struct {
	Parameter string `json:"parameter"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

func (e *BindingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parameter %s: %s: %v", e.Parameter, e.Reason, e.Err)
	}
	return fmt.Sprintf("parameter %s: %s", e.Parameter, e.Reason)
}

func (e *BindingError) Unwrap() error { return e.Err }

var (
	requestContextType = reflect.TypeOf((*reqctx.RequestContext)(nil))
	valueType          = reflect.TypeOf(value.Value{})
	timeType           = reflect.TypeOf(time.Time{})
	durationType       = reflect.TypeOf(time.Duration(0))
)

// BindAll binds every parameter of sig, in declaration order.
func BindAll(sig *registry.OperationSignature, rc *reqctx.RequestContext) ([]reflect.Value, error) {
	wireCount := 0
	for _, p := range sig.Parameters {
		if !p.Injected() {
			wireCount++
		}
	}

	args := make([]reflect.Value, len(sig.Parameters))
	for i, p := range sig.Parameters {
		v, err := Bind(p, rc, wireCount)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// Bind materializes one parameter. wireCount is the number of wire
// parameters of the operation and decides the body fallbacks.
func Bind(p *registry.ParameterSpec, rc *reqctx.RequestContext, wireCount int) (reflect.Value, error) {
	if p.Injected() {
		return inject(p, rc)
	}

	if p.Kind == typename.KindFunction {
		if p.HasDefault {
			return p.Default(), nil
		}
		return reflect.Value{}, &BindingError{Parameter: p.Name, Reason: "function parameters cannot be bound from wire data"}
	}

	if e, ok := rc.Lookup(p.Name); ok {
		v, err := convertEntry(e, p.Type)
		if err != nil {
			return reflect.Value{}, &BindingError{Parameter: p.Name, Reason: "cannot convert " + e.Source.String() + " value to " + p.TypeName, Err: err}
		}
		return v, nil
	}

	body, isJSON := rc.JSONBody()
	switch {
	case isJSON && wireCount == 1:
		v, err := FromJSON(body.Raw, p.Type)
		if err == nil {
			return v, nil
		}
		if p.HasDefault {
			return p.Default(), nil
		}
		return reflect.Value{}, &BindingError{Parameter: p.Name, Reason: "cannot convert request body to " + p.TypeName, Err: err}
	case isJSON && wireCount > 1 && body.IsArray():
		if item := body.Get(strconv.Itoa(p.WireIndex)); item.Exists() {
			v, err := FromJSON(item.Raw, p.Type)
			if err != nil {
				return reflect.Value{}, &BindingError{Parameter: p.Name, Reason: fmt.Sprintf("cannot convert body item %d to %s", p.WireIndex, p.TypeName), Err: err}
			}
			return v, nil
		}
	}

	if p.HasDefault {
		return p.Default(), nil
	}
	return reflect.Value{}, &BindingError{Parameter: p.Name, Reason: "missing required value"}
}

func inject(p *registry.ParameterSpec, rc *reqctx.RequestContext) (reflect.Value, error) {
	switch {
	case p.Type == requestContextType:
		return reflect.ValueOf(rc), nil
	case p.Type == typename.ContextType:
		return reflect.ValueOf(rc.Context()), nil
	case p.Type == typename.HeaderType:
		return reflect.ValueOf(rc.Header), nil
	case requestContextType.AssignableTo(p.Type):
		return reflect.ValueOf(rc).Convert(p.Type), nil
	}
	return reflect.Value{}, &BindingError{Parameter: p.Name, Reason: "no request state of type " + p.TypeName}
}

func convertEntry(e reqctx.Entry, t reflect.Type) (reflect.Value, error) {
	if e.IsJSON() {
		return FromJSON(e.Raw, t)
	}
	return FromText(e.Raw, e.Values, t)
}

// FromText converts plain text, as found in route, query and form values.
// values carries every occurrence of a repeated key and fills container targets.
func FromText(raw string, values []string, t reflect.Type) (reflect.Value, error) {
	switch {
	case t == valueType:
		return reflect.ValueOf(textValue(raw)), nil
	case t == timeType:
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(ts), nil
	case t == durationType:
		if d, err := time.ParseDuration(raw); err == nil {
			return reflect.ValueOf(d), nil
		}
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Interface:
		v := textValue(raw).Interface()
		if v == nil {
			return reflect.Zero(t), nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("%s - %s is not assignable to %s", logPrefix, rv.Type(), t)
		}
		out.Set(rv)
	case reflect.Pointer:
		if raw == "" || raw == "null" {
			return reflect.Zero(t), nil
		}
		elem, err := FromText(raw, values, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	case reflect.String:
		out.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	case reflect.Slice:
		trimmed := strings.TrimSpace(raw)
		if len(values) <= 1 && strings.HasPrefix(trimmed, "[") {
			return FromJSON(trimmed, t)
		}
		if len(values) == 0 {
			values = []string{raw}
		}
		list := reflect.MakeSlice(t, len(values), len(values))
		for i, item := range values {
			ev, err := FromText(item, nil, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("item %d: %w", i, err)
			}
			list.Index(i).Set(ev)
		}
		return list, nil
	default:
		return FromJSON(raw, t)
	}
	return out, nil
}

// textValue keeps JSON containers posted as text and treats anything else as a string.
func textValue(raw string) value.Value {
	trimmed := strings.TrimSpace(raw)
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && gjson.Valid(trimmed) {
		v, _ := value.Parse(trimmed)
		return v
	}
	return value.NewString(raw)
}

// FromJSON converts JSON text into a value of type t.
func FromJSON(raw string, t reflect.Type) (reflect.Value, error) {
	if !gjson.Valid(raw) {
		return reflect.Value{}, fmt.Errorf("%s - invalid JSON", logPrefix)
	}
	r := gjson.Parse(raw)

	switch {
	case t == valueType:
		return reflect.ValueOf(value.FromResult(r)), nil
	case t.Kind() == reflect.Interface:
		v := value.FromResult(r).Interface()
		if v == nil {
			return reflect.Zero(t), nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("%s - %s is not assignable to %s", logPrefix, rv.Type(), t)
		}
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	case r.Type == gjson.Null && nillable(t.Kind()):
		return reflect.Zero(t), nil
	case typename.KindOf(t) == typename.KindTuple && r.IsArray():
		return tupleFromArray(r, t)
	}

	// Lenient scalars: quoted numbers and bools, or scalar JSON for a string target.
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		if r.Type == gjson.String && t != durationType {
			return FromText(r.Str, nil, t)
		}
	case reflect.String:
		if r.Type == gjson.Number || r.Type == gjson.True || r.Type == gjson.False {
			out := reflect.New(t).Elem()
			out.SetString(r.Raw)
			return out, nil
		}
	}
	if t == durationType && r.Type == gjson.String {
		return FromText(r.Str, nil, t)
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

func tupleFromArray(r gjson.Result, t reflect.Type) (reflect.Value, error) {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	items := r.Array()
	if len(items) != base.NumField() {
		return reflect.Value{}, fmt.Errorf("%s - tuple of %d items from array of %d", logPrefix, base.NumField(), len(items))
	}
	out := reflect.New(base).Elem()
	for i, item := range items {
		fv, err := FromJSON(item.Raw, base.Field(i).Type)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		out.Field(i).Set(fv)
	}
	if t.Kind() == reflect.Pointer {
		return out.Addr(), nil
	}
	return out, nil
}

func nillable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
