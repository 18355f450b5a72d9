package reqctx

import (
	"context"
	"net/http"
	"testing"
)

const reqctxTestPrefix = "reqctx:reqctx_test"

func TestNew_CorrelationFromHeader(t *testing.T) {
	h := http.Header{}
	h.Set(CorrelationHeader, "corr-42")
	rc := New(context.Background(), http.MethodGet, "/x", h, nil)
	if rc.CorrelationID != "corr-42" {
		t.Errorf("%s - CorrelationID = %q, want corr-42", reqctxTestPrefix, rc.CorrelationID)
	}
}

func TestNew_CorrelationGenerated(t *testing.T) {
	a := New(context.Background(), http.MethodGet, "/x", nil, nil)
	b := New(context.Background(), http.MethodGet, "/x", nil, nil)
	if a.CorrelationID == "" || b.CorrelationID == "" {
		t.Fatalf("%s - expected generated correlation ids", reqctxTestPrefix)
	}
	if a.CorrelationID == b.CorrelationID {
		t.Errorf("%s - generated ids should differ", reqctxTestPrefix)
	}
}

func TestPopulate_FormKeepsEncodedAmpersand(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	rc := New(context.Background(), http.MethodPost, "/echo", h, []byte("text=fish%26chips&other=x%3Dy"))
	rc.Populate(nil)

	e, ok := rc.Lookup("text")
	if !ok {
		t.Fatalf("%s - text not found", reqctxTestPrefix)
	}
	if e.Raw != "fish&chips" {
		t.Errorf("%s - text = %q, want fish&chips", reqctxTestPrefix, e.Raw)
	}
	if e.Source != SourceForm {
		t.Errorf("%s - source = %v, want form", reqctxTestPrefix, e.Source)
	}
	if o, _ := rc.Lookup("other"); o.Raw != "x=y" {
		t.Errorf("%s - other = %q, want x=y", reqctxTestPrefix, o.Raw)
	}
}

func TestPopulate_Precedence(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	rc := New(context.Background(), http.MethodPost, "/p", h, []byte(`{"id":"json","name":"body","n":5}`))
	rc.RawQuery = "ID=query&name=q1&name=q2"
	rc.Populate(map[string]string{"id": "route"})

	if e, _ := rc.Lookup("id"); e.Raw != "route" || e.Source != SourceRoute {
		t.Errorf("%s - id = %+v, want route value", reqctxTestPrefix, e)
	}
	name, _ := rc.Lookup("NAME")
	if name.Raw != "q2" || len(name.Values) != 2 {
		t.Errorf("%s - name = %+v, want last query value", reqctxTestPrefix, name)
	}
	n, _ := rc.Lookup("n")
	if !n.IsJSON() || n.Raw != "5" {
		t.Errorf("%s - n = %+v, want JSON 5", reqctxTestPrefix, n)
	}
	if _, ok := rc.JSONBody(); !ok {
		t.Errorf("%s - expected JSON body", reqctxTestPrefix)
	}
}

func TestPopulate_NonJSONBodyIgnored(t *testing.T) {
	rc := New(context.Background(), http.MethodPost, "/p", nil, []byte("plain words"))
	rc.Populate(nil)
	if len(rc.Values()) != 0 {
		t.Errorf("%s - expected no values, got %v", reqctxTestPrefix, rc.Values())
	}
	if _, ok := rc.JSONBody(); ok {
		t.Errorf("%s - plain body must not parse as JSON", reqctxTestPrefix)
	}
}

func TestEnv(t *testing.T) {
	rc := New(context.Background(), http.MethodGet, "/", nil, nil)
	if _, ok := rc.Env("user"); ok {
		t.Fatalf("%s - env should start empty", reqctxTestPrefix)
	}
	rc.SetEnv("user", "ada")
	if v, ok := rc.Env("user"); !ok || v != "ada" {
		t.Errorf("%s - Env(user) = %v, %v", reqctxTestPrefix, v, ok)
	}
}
