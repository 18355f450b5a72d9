package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/operations-host/pkg/binder"
	"github.com/morezero/operations-host/pkg/codec"
	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/metadata"
	"github.com/morezero/operations-host/pkg/metrics"
	"github.com/morezero/operations-host/pkg/registry"
	"github.com/morezero/operations-host/pkg/reqctx"
	"github.com/morezero/operations-host/pkg/router"
)

const logPrefix = "dispatcher:dispatch"

// Route labels for requests that did not reach an operation.
const (
	routeUnmatched = "unmatched"
	routeStatic    = "static"
	routeMetadata  = "metadata"
)

// Dispatcher drives requests for one host.
type Dispatcher struct {
	router   *router.Router
	registry *registry.Registry
	hooks    *hooks.Pipeline
	metrics  *metrics.Collector
	version  string
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Router   *router.Router
	Registry *registry.Registry
	Hooks    *hooks.Pipeline
	Metrics  *metrics.Collector
	// Version is reported in the metadata document.
	Version string
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	h := params.Hooks
	if h == nil {
		h = hooks.NewPipeline(params.Metrics)
	}
	return &Dispatcher{
		router:   params.Router,
		registry: params.Registry,
		hooks:    h,
		metrics:  params.Metrics,
		version:  params.Version,
	}
}

// Hooks returns the hook pipeline.
func (d *Dispatcher) Hooks() *hooks.Pipeline { return d.hooks }

// Dispatch runs req to completion and calls send exactly once with the
// response. A routing miss answers 404 without running hooks. The error
// returned is the one from send.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, send func(*Response) error) error {
	start := time.Now()
	rc := reqctx.New(ctx, req.Method, req.Path, req.Header, req.Body)
	rc.RawQuery = req.RawQuery
	rc.RemoteAddr = req.RemoteAddr
	slog.Debug(fmt.Sprintf("%s - %s %s correlation=%s", logPrefix, req.Method, req.Path, rc.CorrelationID))

	match := d.router.Resolve(req.Method, req.Path)
	rc.RoutePath = match.Path

	switch match.Kind {
	case router.NotFound:
		resp := d.errorResponse(rc, http.StatusNotFound, hooks.CodeNotFound, "no route for "+match.Path, nil)
		resp.Kind, resp.Route, resp.State = router.NotFound, routeUnmatched, Routed
		d.metrics.ObserveRequest(routeUnmatched, metrics.OutcomeNotFound, time.Since(start))
		return d.send(send, resp)
	case router.Static:
		resp := d.newResponse(rc, http.StatusOK)
		resp.Kind, resp.FilePath, resp.Route, resp.State = router.Static, match.FilePath, routeStatic, Sent
		d.metrics.ObserveRequest(routeStatic, metrics.OutcomeStatic, time.Since(start))
		return d.send(send, resp)
	}

	rc.Populate(match.RouteValues)
	route := routeMetadata
	if match.Kind == router.Operation {
		route = match.Operation.RoutePath
	}

	// Routed -> PreHooksRun
	if reply := d.hooks.RunPre(rc); reply != nil {
		resp := d.replyResponse(rc, reply)
		resp.Route, resp.State = route, PreHooksRun
		d.metrics.ObserveRequest(route, metrics.OutcomeRejected, time.Since(start))
		return d.send(send, resp)
	}

	var (
		value     any
		hasResult bool
	)
	if match.Kind == router.Metadata {
		value, hasResult = metadata.Build(d.registry, d.version), true
	} else {
		sig := match.Operation

		// PreHooksRun -> Bound
		args, err := binder.BindAll(sig, rc)
		if err != nil {
			resp := d.fail(rc, route, http.StatusBadRequest, hooks.CodeBindingFailed, err)
			d.metrics.ObserveRequest(route, metrics.OutcomeBindingFailed, time.Since(start))
			return d.send(send, resp)
		}

		// Bound -> Invoked
		value, err = sig.Invoke(args)
		if err != nil {
			resp := d.fail(rc, route, http.StatusInternalServerError, hooks.CodeInternal, &InvocationError{Route: route, Err: err})
			d.metrics.ObserveRequest(route, metrics.OutcomeFailed, time.Since(start))
			return d.send(send, resp)
		}
		hasResult = sig.HasResult()
	}

	// Invoked -> Serialized
	resp := d.newResponse(rc, http.StatusNoContent)
	resp.Kind, resp.Route, resp.Value = match.Kind, route, value
	if hasResult {
		ser := codec.Negotiate(rc.Header.Get("Accept"))
		body, err := ser.Marshal(value)
		if err != nil {
			resp := d.fail(rc, route, http.StatusInternalServerError, hooks.CodeInternal, fmt.Errorf("%s - serialize result: %w", logPrefix, err))
			d.metrics.ObserveRequest(route, metrics.OutcomeFailed, time.Since(start))
			return d.send(send, resp)
		}
		resp.Status, resp.ContentType, resp.Body = http.StatusOK, ser.ContentType(), body
	}
	resp.State = Serialized

	// Serialized -> Sent
	err := d.send(send, resp)
	resp.State = Sent
	elapsed := time.Since(start)
	d.metrics.ObserveRequest(route, metrics.OutcomeOK, elapsed)

	d.hooks.RunPost(rc, &hooks.Result{Route: route, Status: resp.Status, Value: value, Elapsed: elapsed})
	return err
}

func (d *Dispatcher) send(send func(*Response) error, resp *Response) error {
	if err := send(resp); err != nil {
		slog.Warn(fmt.Sprintf("%s - writing response for %s failed: %v", logPrefix, resp.Route, err))
		return err
	}
	return nil
}

func (d *Dispatcher) newResponse(rc *reqctx.RequestContext, status int) *Response {
	resp := &Response{
		Status:        status,
		Header:        http.Header{},
		CorrelationID: rc.CorrelationID,
		Kind:          router.Operation,
		State:         Received,
	}
	resp.Header.Set(reqctx.CorrelationHeader, rc.CorrelationID)
	return resp
}

// fail runs the error handlers, then builds the generic failure response.
func (d *Dispatcher) fail(rc *reqctx.RequestContext, route string, status int, code string, err error) *Response {
	d.hooks.ReportFailure(rc.Context(), &hooks.Failure{
		Source:        hooks.SourceRequest,
		Route:         route,
		CorrelationID: rc.CorrelationID,
		Status:        status,
		Err:           err,
	})

	message := "operation failed"
	var details map[string]interface{}
	var be *binder.BindingError
	if errors.As(err, &be) {
		message = be.Error()
		details = map[string]interface{}{"parameter": be.Parameter, "reason": be.Reason}
	}
	resp := d.errorResponse(rc, status, code, message, details)
	resp.Route, resp.State = route, ErrorHandling
	return resp
}

func (d *Dispatcher) errorResponse(rc *reqctx.RequestContext, status int, code, message string, details map[string]interface{}) *Response {
	reply := hooks.NewErrorReply(status, code, message, rc.CorrelationID)
	reply.Body.(*hooks.ErrorBody).Error.Details = details
	return d.replyResponse(rc, reply)
}

func (d *Dispatcher) replyResponse(rc *reqctx.RequestContext, reply *hooks.Reply) *Response {
	resp := d.newResponse(rc, reply.Status)
	for k, vals := range reply.Header {
		for _, v := range vals {
			resp.Header.Add(k, v)
		}
	}
	resp.Value = reply.Body
	if reply.Body == nil {
		return resp
	}
	ser := codec.Negotiate(rc.Header.Get("Accept"))
	body, err := ser.Marshal(reply.Body)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - serialize reply: %v", logPrefix, err))
		return resp
	}
	resp.ContentType, resp.Body = ser.ContentType(), body
	return resp
}
