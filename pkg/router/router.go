// Package router maps an inbound method and path to an operation, a static
// file or a miss.
package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/morezero/operations-host/pkg/registry"
)

const logPrefix = "router:router"

// Kind is the outcome of a route resolution.
type Kind int

const (
	NotFound Kind = iota
	Operation
	Static
	Metadata
)

func (k Kind) String() string {
	switch k {
	case Operation:
		return "operation"
	case Static:
		return "static"
	case Metadata:
		return "metadata"
	}
	return "not_found"
}

// Match is the result of Resolve.
type Match struct {
	Kind Kind
	// Path is the normalized path after the application path was stripped.
	Path        string
	Operation   *registry.OperationSignature
	RouteValues map[string]string
	FilePath    string
}

// StaticDir maps a URL prefix to a directory on disk.
type StaticDir struct {
	Prefix string
	Root   string
}

// Options configures a Router.
type Options struct {
	ApplicationPath string
	MetadataPath    string
}

// Router resolves paths against a registry and static directory mappings.
type Router struct {
	reg          *registry.Registry
	appPath      []string
	metadataPath string
	statics      []StaticDir
}

// New creates a Router over reg.
func New(reg *registry.Registry, opts Options) *Router {
	r := &Router{
		reg:     reg,
		appPath: segments(opts.ApplicationPath),
	}
	if opts.MetadataPath != "" {
		r.metadataPath = registry.NormalizePath(opts.MetadataPath)
	}
	return r
}

// AddStatic maps urlPrefix to root. The first mapping added wins when
// prefixes overlap.
func (r *Router) AddStatic(urlPrefix, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%s - static root %s: %w", logPrefix, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s - static root %s is not a directory", logPrefix, root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%s - static root %s: %w", logPrefix, root, err)
	}
	r.statics = append(r.statics, StaticDir{Prefix: registry.NormalizePath(urlPrefix), Root: abs})
	slog.Debug(fmt.Sprintf("%s - static %s -> %s", logPrefix, registry.NormalizePath(urlPrefix), abs))
	return nil
}

// Statics returns the static directory mappings in precedence order.
func (r *Router) Statics() []StaticDir {
	return append([]StaticDir(nil), r.statics...)
}

// Resolve matches rawPath. Operations win over static files; the metadata
// path is served only when no operation or file claims it.
func (r *Router) Resolve(method, rawPath string) Match {
	segs := stripPrefix(segments(rawPath), r.appPath)
	path := registry.NormalizePath(strings.Join(segs, "/"))

	if sig := r.reg.Resolve(path); sig != nil {
		return Match{Kind: Operation, Path: path, Operation: sig}
	}
	if sig, vals := r.reg.MatchTemplate(strings.Join(segs, "/")); sig != nil {
		return Match{Kind: Operation, Path: path, Operation: sig, RouteValues: vals}
	}
	if method == http.MethodGet || method == http.MethodHead {
		if file, ok := r.lookupStatic(segs); ok {
			return Match{Kind: Static, Path: path, FilePath: file}
		}
	}
	if r.metadataPath != "" && path == r.metadataPath {
		return Match{Kind: Metadata, Path: path}
	}
	return Match{Kind: NotFound, Path: path}
}

func (r *Router) lookupStatic(segs []string) (string, bool) {
	for _, s := range r.statics {
		prefix := segments(s.Prefix)
		if len(segs) < len(prefix) || !hasPrefix(segs, prefix) {
			continue
		}
		rest := segs[len(prefix):]
		if !safe(rest) {
			continue
		}
		file := filepath.Join(append([]string{s.Root}, rest...)...)
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.IsDir() {
			file = filepath.Join(file, "index.html")
			if info, err = os.Stat(file); err != nil || info.IsDir() {
				continue
			}
		}
		return file, true
	}
	return "", false
}

// StripApplicationPath removes the virtual application path from the front
// of path. The prefix may have leading or trailing slashes and is compared
// case-insensitively; an empty prefix is a no-op. The result keeps the
// path's original case.
func StripApplicationPath(path, applicationPath string) string {
	return "/" + strings.Join(stripPrefix(segments(path), segments(applicationPath)), "/")
}

func stripPrefix(segs, prefix []string) []string {
	if len(prefix) == 0 || len(segs) < len(prefix) || !hasPrefix(segs, prefix) {
		return segs
	}
	return segs[len(prefix):]
}

func hasPrefix(segs, prefix []string) bool {
	for i, p := range prefix {
		if !strings.EqualFold(segs[i], p) {
			return false
		}
	}
	return true
}

func segments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

func safe(segs []string) bool {
	for _, s := range segs {
		if s == "." || s == ".." || strings.ContainsRune(s, 0) {
			return false
		}
	}
	return true
}
