// Package dispatcher runs one request through routing, hooks, binding,
// invocation and serialization.
package dispatcher

import (
	"net/http"

	"github.com/morezero/operations-host/pkg/router"
)

// Request is one inbound call from any transport.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       []byte
	RemoteAddr string
}

// Response is handed to the transport's send function exactly once.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Body        []byte
	// FilePath is set for static files; the transport serves the file.
	FilePath      string
	Value         any
	CorrelationID string
	Kind          router.Kind
	Route         string
	State         State
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// State is a step of the per-request state machine.
type State int

const (
	Received State = iota
	Routed
	PreHooksRun
	Bound
	Invoked
	Serialized
	Sent
	ErrorHandling
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Routed:
		return "routed"
	case PreHooksRun:
		return "pre_hooks_run"
	case Bound:
		return "bound"
	case Invoked:
		return "invoked"
	case Serialized:
		return "serialized"
	case Sent:
		return "sent"
	case ErrorHandling:
		return "error_handling"
	}
	return "unknown"
}

// InvocationError wraps an error returned or raised by an operation.
type InvocationError struct {
	Route string
	Err   error
}

func (e *InvocationError) Error() string {
	return "operation " + e.Route + " failed: " + e.Err.Error()
}

func (e *InvocationError) Unwrap() error { return e.Err }
