package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/morezero/operations-host/pkg/registry"
)

const routerTestPrefix = "router:router_test"

type ops struct{}

func (ops) SayHi() string { return "hi" }

func (ops) Readme() string { return "operation" }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	if _, err := reg.RegisterType(ops{}, "/"); err != nil {
		t.Fatalf("%s - RegisterType error: %v", routerTestPrefix, err)
	}
	return reg
}

func TestResolve_ApplicationPath(t *testing.T) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	prefixes := []string{"a/b", "/a/b/", "/A/B", token, "/" + token + "/"}

	reg := newRegistry(t)
	plain := New(reg, Options{}).Resolve(http.MethodGet, "/SayHi")
	if plain.Kind != Operation {
		t.Fatalf("%s - /SayHi without prefix = %v", routerTestPrefix, plain.Kind)
	}

	for _, prefix := range prefixes {
		t.Run(prefix, func(t *testing.T) {
			r := New(reg, Options{ApplicationPath: prefix})
			request := "/" + strings.Trim(prefix, "/") + "/SayHi"
			m := r.Resolve(http.MethodGet, request)
			if m.Kind != Operation || m.Operation != plain.Operation || m.Path != plain.Path {
				t.Errorf("%s - Resolve(%s) = %+v, want %+v", routerTestPrefix, request, m, plain)
			}
		})
	}
}

func TestStripApplicationPath(t *testing.T) {
	tests := []struct {
		path, app, want string
	}{
		{"/a/b/SayHi", "a/b", "/SayHi"},
		{"/A/b/SayHi/", "/a/B/", "/SayHi"},
		{"/a/SayHi", "a/b", "/a/SayHi"},
		{"/SayHi", "", "/SayHi"},
		{"/ab/SayHi", "a", "/ab/SayHi"},
	}
	for _, tt := range tests {
		if got := StripApplicationPath(tt.path, tt.app); got != tt.want {
			t.Errorf("%s - StripApplicationPath(%q, %q) = %q, want %q", routerTestPrefix, tt.path, tt.app, got, tt.want)
		}
	}
}

func TestResolve_TrailingSlashAndCase(t *testing.T) {
	r := New(newRegistry(t), Options{})
	for _, p := range []string{"/sayhi", "/SAYHI/", "//SayHi"} {
		if m := r.Resolve(http.MethodPost, p); m.Kind != Operation {
			t.Errorf("%s - Resolve(%s) = %v", routerTestPrefix, p, m.Kind)
		}
	}
}

func TestResolve_Static(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Site.CSS"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme"), []byte("file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "docs", "index.html"), []byte("<p/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := newRegistry(t)
	r := New(reg, Options{})
	if err := r.AddStatic("/", dir); err != nil {
		t.Fatalf("%s - AddStatic error: %v", routerTestPrefix, err)
	}

	m := r.Resolve(http.MethodGet, "/Site.CSS")
	if m.Kind != Static || filepath.Base(m.FilePath) != "Site.CSS" {
		t.Errorf("%s - static = %+v", routerTestPrefix, m)
	}
	if m := r.Resolve(http.MethodGet, "/docs/"); m.Kind != Static || filepath.Base(m.FilePath) != "index.html" {
		t.Errorf("%s - directory index = %+v", routerTestPrefix, m)
	}
	if m := r.Resolve(http.MethodGet, "/readme"); m.Kind != Operation {
		t.Errorf("%s - operation must win over static file, got %v", routerTestPrefix, m.Kind)
	}
	if m := r.Resolve(http.MethodPost, "/Site.CSS"); m.Kind != NotFound {
		t.Errorf("%s - static files are GET only, got %v", routerTestPrefix, m.Kind)
	}
	if m := r.Resolve(http.MethodGet, "/../secret"); m.Kind != NotFound {
		t.Errorf("%s - traversal = %v", routerTestPrefix, m.Kind)
	}
}

func TestResolve_StaticMountRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(newRegistry(t), Options{})
	if err := r.AddStatic("/static", dir); err != nil {
		t.Fatalf("%s - AddStatic error: %v", routerTestPrefix, err)
	}

	for _, p := range []string{"/static", "/static/", "/STATIC/index.html"} {
		if m := r.Resolve(http.MethodGet, p); m.Kind != Static || m.FilePath != filepath.Join(dir, "index.html") {
			t.Errorf("%s - Resolve(%s) = %+v", routerTestPrefix, p, m)
		}
	}
}

func TestResolve_MetadataAndMiss(t *testing.T) {
	r := New(newRegistry(t), Options{MetadataPath: "/Metadata/"})
	if m := r.Resolve(http.MethodGet, "/metadata"); m.Kind != Metadata {
		t.Errorf("%s - metadata = %v", routerTestPrefix, m.Kind)
	}
	if m := r.Resolve(http.MethodGet, "/nothing/here"); m.Kind != NotFound || m.Path != "/nothing/here" {
		t.Errorf("%s - miss = %+v", routerTestPrefix, m)
	}
}

func TestAddStatic_MissingRoot(t *testing.T) {
	r := New(registry.New(), Options{})
	if err := r.AddStatic("/x", filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Errorf("%s - expected error for missing root", routerTestPrefix)
	}
}
