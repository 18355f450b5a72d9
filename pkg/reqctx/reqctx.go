// Package reqctx holds the per-request state shared by the router, the hook
// pipeline, the binder and operations that ask for it.
package reqctx

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const logPrefix = "reqctx:reqctx"

// CorrelationHeader carries the correlation id in and out of the host.
const CorrelationHeader = "X-CorrelationId"

// Source says where a named value came from.
type Source int

const (
	SourceJSON Source = iota
	SourceForm
	SourceQuery
	SourceRoute
)

func (s Source) String() string {
	switch s {
	case SourceJSON:
		return "json"
	case SourceForm:
		return "form"
	case SourceQuery:
		return "query"
	case SourceRoute:
		return "route"
	}
	return "unknown"
}

// Entry is one named value. Raw is plain text for route, query and form
// values and JSON text for fields of a JSON body. Values keeps every
// occurrence of a repeated query or form key; Raw is the last one.
type Entry struct {
	Name   string
	Raw    string
	Values []string
	Source Source
}

// IsJSON reports whether Raw holds JSON text.
func (e Entry) IsJSON() bool { return e.Source == SourceJSON }

// RequestContext is created per request and owned by the goroutine handling it.
type RequestContext struct {
	ctx context.Context

	Method        string
	Path          string
	RawQuery      string
	RoutePath     string
	Header        http.Header
	Body          []byte
	RemoteAddr    string
	CorrelationID string

	values map[string]Entry
	env    map[string]any
	body   gjson.Result
	isJSON bool
}

// New builds a RequestContext. The correlation id is taken from the
// X-CorrelationId header when present, otherwise generated.
func New(ctx context.Context, method, path string, header http.Header, body []byte) *RequestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if header == nil {
		header = http.Header{}
	}
	rc := &RequestContext{
		ctx:    ctx,
		Method: method,
		Path:   path,
		Header: header,
		Body:   body,
		values: map[string]Entry{},
		env:    map[string]any{},
	}
	rc.CorrelationID = strings.TrimSpace(header.Get(CorrelationHeader))
	if rc.CorrelationID == "" {
		rc.CorrelationID = uuid.NewString()
	}
	return rc
}

// InjectedContext marks RequestContext as supplied by the host.
func (rc *RequestContext) InjectedContext() {}

// Context returns the request's context.Context.
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// Populate loads the named values of the request. Sources are written from
// lowest to highest precedence (JSON body, form, query, route segments) so the
// last write wins.
func (rc *RequestContext) Populate(route map[string]string) {
	if len(rc.Body) > 0 {
		switch rc.mediaType() {
		case "application/x-www-form-urlencoded":
			rc.setAll(parseQuery(string(rc.Body)), SourceForm)
		default:
			rc.loadJSON()
		}
	}
	if rc.RawQuery != "" {
		rc.setAll(parseQuery(rc.RawQuery), SourceQuery)
	}
	for name, v := range route {
		rc.Set(Entry{Name: name, Raw: v, Values: []string{v}, Source: SourceRoute})
	}
}

func (rc *RequestContext) mediaType() string {
	ct := rc.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}

// loadJSON parses the body when it is JSON; any other body is left unparsed.
func (rc *RequestContext) loadJSON() {
	if !gjson.ValidBytes(rc.Body) {
		return
	}
	rc.body = gjson.ParseBytes(rc.Body)
	rc.isJSON = true
	if !rc.body.IsObject() {
		return
	}
	rc.body.ForEach(func(key, item gjson.Result) bool {
		rc.Set(Entry{Name: key.Str, Raw: item.Raw, Source: SourceJSON})
		return true
	})
}

func (rc *RequestContext) setAll(vals url.Values, src Source) {
	for name, list := range vals {
		if len(list) == 0 {
			continue
		}
		rc.Set(Entry{Name: name, Raw: list[len(list)-1], Values: list, Source: src})
	}
}

// parseQuery decodes an encoded payload in one pass: pairs are split on the
// encoded form, so %26 inside a value stays part of that value.
func parseQuery(encoded string) url.Values {
	vals, err := url.ParseQuery(encoded)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - partial query decode: %v", logPrefix, err))
	}
	return vals
}

// Set stores a named value. Keys are case-insensitive and the last write wins.
func (rc *RequestContext) Set(e Entry) {
	rc.values[strings.ToLower(e.Name)] = e
}

// Lookup finds a named value, ignoring case.
func (rc *RequestContext) Lookup(name string) (Entry, bool) {
	e, ok := rc.values[strings.ToLower(name)]
	return e, ok
}

// Values returns a copy of the named values keyed by lower-cased name.
func (rc *RequestContext) Values() map[string]Entry {
	out := make(map[string]Entry, len(rc.values))
	for k, v := range rc.values {
		out[k] = v
	}
	return out
}

// JSONBody returns the parsed body and whether the body was JSON.
func (rc *RequestContext) JSONBody() (gjson.Result, bool) {
	return rc.body, rc.isJSON
}

// SetEnv stores a value in the environment bag used for hook-to-hook communication.
func (rc *RequestContext) SetEnv(key string, v any) {
	rc.env[key] = v
}

// Env reads a value from the environment bag.
func (rc *RequestContext) Env(key string) (any, bool) {
	v, ok := rc.env[key]
	return v, ok
}
