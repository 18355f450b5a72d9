// Package hooks holds the ordered pre, post and error hook lists of a host
// and the hooks the host ships with.
package hooks

import (
	"context"
	"net/http"
	"time"

	"github.com/morezero/operations-host/pkg/reqctx"
)

// Error codes used in client-visible error bodies.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeBindingFailed = "BINDING_FAILED"
	CodeInternal      = "INTERNAL_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeRateLimited   = "RATE_LIMITED"
	CodeVersion       = "VERSION_MISMATCH"
	CodeBadRequest    = "BAD_REQUEST"
)

// Failure sources.
const (
	SourceRequest = "request"
	SourceTask    = "task"
)

// Environment bag keys written by the built-in hooks.
const (
	EnvClaims  = "auth.claims"
	EnvSubject = "auth.subject"
)

// ErrorDetail is the error part of a failure response.
type ErrorDetail struct {
	Code      string                 `json:"code" yaml:"code"`
	Message   string                 `json:"message" yaml:"message"`
	Details   map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
	Retryable bool                   `json:"retryable" yaml:"retryable"`
}

// ErrorBody is the generic failure payload. Internal detail is left to
// the error handlers.
type ErrorBody struct {
	Ok            bool        `json:"ok" yaml:"ok"`
	Error         ErrorDetail `json:"error" yaml:"error"`
	CorrelationID string      `json:"correlationId,omitempty" yaml:"correlationId,omitempty"`
}

// Reply is a response produced by a pre-hook. It ends the pipeline before
// binding.
type Reply struct {
	Status int
	Header http.Header
	Body   any
}

// NewErrorReply builds a Reply carrying an ErrorBody.
func NewErrorReply(status int, code, message, correlationID string) *Reply {
	return &Reply{
		Status: status,
		Body: &ErrorBody{
			Error:         ErrorDetail{Code: code, Message: message, Retryable: status == http.StatusTooManyRequests},
			CorrelationID: correlationID,
		},
	}
}

// Result is what post-hooks see of a completed request.
type Result struct {
	Route   string
	Status  int
	Value   any
	Elapsed time.Duration
}

// Failure is one unhandled error, from a request or a scheduler tick.
type Failure struct {
	Source        string
	Route         string
	Task          string
	CorrelationID string
	Status        int
	Err           error
	At            time.Time
}

// PreHook runs after routing and before binding. Returning a non-nil Reply
// short-circuits the request.
type PreHook interface {
	Before(rc *reqctx.RequestContext) (*Reply, error)
}

// PostHook runs after the response was handed off.
type PostHook interface {
	After(rc *reqctx.RequestContext, res *Result) error
}

// ErrorHandler observes failures. Handlers are called concurrently from
// request handlers and scheduler ticks.
type ErrorHandler interface {
	HandleError(ctx context.Context, f *Failure) error
}

// PreHookFunc adapts a function to PreHook.
type PreHookFunc func(rc *reqctx.RequestContext) (*Reply, error)

func (f PreHookFunc) Before(rc *reqctx.RequestContext) (*Reply, error) { return f(rc) }

// PostHookFunc adapts a function to PostHook.
type PostHookFunc func(rc *reqctx.RequestContext, res *Result) error

func (f PostHookFunc) After(rc *reqctx.RequestContext, res *Result) error { return f(rc, res) }

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, f *Failure) error

func (f ErrorHandlerFunc) HandleError(ctx context.Context, fl *Failure) error { return f(ctx, fl) }
