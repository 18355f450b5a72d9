package typename

import (
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"
)

const typenameTestPrefix = "typename:typename_test"

type person struct {
	Name string
}

type celsius float64

type injectedThing struct{}

func (*injectedThing) InjectedContext() {}

type named struct{}

func (named) TypeName() string { return "Object" }

type tree map[string]tree

type chain []chain

type forest []grove

type grove map[string]forest

type loop *loop

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"int32", reflect.TypeOf(int32(0)), "Int32"},
		{"string", reflect.TypeOf(""), "String"},
		{"int", reflect.TypeOf(0), "Int64"},
		{"float64", reflect.TypeOf(0.0), "Double"},
		{"bool", reflect.TypeOf(true), "Boolean"},
		{"named primitive", reflect.TypeOf(celsius(0)), "Double"},
		{"any", reflect.TypeOf((*any)(nil)).Elem(), "Object"},
		{"time", reflect.TypeOf(time.Time{}), "DateTime"},
		{"duration", reflect.TypeOf(time.Second), "TimeSpan"},
		{"list of map", reflect.TypeOf([]map[int32]any{}), "List<Dictionary<Int32,Object>>"},
		{"nested map", reflect.TypeOf(map[int32]map[int32]any{}), "Dictionary<Int32,Dictionary<Int32,Object>>"},
		{"tuple3", reflect.TypeOf(Tuple3[int32, string, any]{}), "Tuple<Int32,String,Object>"},
		{"tuple2 pointer", reflect.TypeOf(&Tuple2[string, []int32]{}), "Tuple<String,List<Int32>>"},
		{"func", reflect.TypeOf(func(int32) string { return "" }), "Func<Int32,String>"},
		{"nested func", reflect.TypeOf(func(func(int32) int32) string { return "" }), "Func<Func<Int32,Int32>,String>"},
		{"struct", reflect.TypeOf(person{}), "person"},
		{"struct pointer", reflect.TypeOf(&person{}), "person"},
		{"array", reflect.TypeOf([3]string{}), "List<String>"},
		{"namer", reflect.TypeOf(named{}), "Object"},
		{"context", reflect.TypeOf((*context.Context)(nil)).Elem(), "context.Context"},
		{"header", reflect.TypeOf(http.Header{}), "net/http.Header"},
		{"nil", nil, "Void"},
		{"recursive map", reflect.TypeOf(tree{}), "Dictionary<String,tree>"},
		{"recursive slice", reflect.TypeOf(chain{}), "List<chain>"},
		{"recursive slice element", reflect.TypeOf([]chain{}), "List<List<chain>>"},
		{"mutual recursion", reflect.TypeOf(forest{}), "List<Dictionary<String,forest>>"},
		{"mutual recursion other side", reflect.TypeOf(grove{}), "Dictionary<String,List<grove>>"},
		{"self pointer", reflect.TypeOf((*loop)(nil)).Elem(), "loop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.typ)
			if got != tt.want {
				t.Errorf("%s - Format() = %q, want %q", typenameTestPrefix, got, tt.want)
			}
			// cached result must match
			if again := Format(tt.typ); again != got {
				t.Errorf("%s - second Format() = %q, want %q", typenameTestPrefix, again, got)
			}
		})
	}
}

func TestFormat_InjectedUsesFullName(t *testing.T) {
	got := Format(reflect.TypeOf(&injectedThing{}))
	want := "github.com/morezero/operations-host/pkg/typename.injectedThing"
	if got != want {
		t.Errorf("%s - Format() = %q, want %q", typenameTestPrefix, got, want)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want Kind
	}{
		{"int", reflect.TypeOf(0), KindPrimitive},
		{"string", reflect.TypeOf(""), KindString},
		{"slice", reflect.TypeOf([]int{}), KindContainer},
		{"map", reflect.TypeOf(map[string]int{}), KindMap},
		{"tuple", reflect.TypeOf(Tuple2[int, int]{}), KindTuple},
		{"func", reflect.TypeOf(func() {}), KindFunction},
		{"struct", reflect.TypeOf(person{}), KindObject},
		{"pointer struct", reflect.TypeOf(&person{}), KindObject},
		{"injected", reflect.TypeOf(&injectedThing{}), KindContext},
		{"context", reflect.TypeOf((*context.Context)(nil)).Elem(), KindContext},
		{"time", reflect.TypeOf(time.Time{}), KindPrimitive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.typ); got != tt.want {
				t.Errorf("%s - KindOf() = %v, want %v", typenameTestPrefix, got, tt.want)
			}
		})
	}
}

func TestNewTuple(t *testing.T) {
	tp := NewTuple3(int32(1), "a", any(nil))
	if tp.Item1 != 1 || tp.Item2 != "a" || tp.Item3 != nil {
		t.Errorf("%s - unexpected tuple %+v", typenameTestPrefix, tp)
	}
}
