package natsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/operations-host/pkg/codec"
	"github.com/morezero/operations-host/pkg/commsutil"
	"github.com/morezero/operations-host/pkg/dispatcher"
	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/reqctx"
)

const logPrefix = "natsbridge:bridge"

// DefaultRequestTimeout bounds one bridged request unless the caller asks
// for less.
const DefaultRequestTimeout = 25 * time.Second

// DefaultMaxInFlight caps concurrently dispatched requests per bridge.
const DefaultMaxInFlight = 256

// Bridge subscribes to the operations wildcard and dispatches each message.
type Bridge struct {
	nc      *comms.Conn
	d       *dispatcher.Dispatcher
	prefix  string
	queue   string
	timeout time.Duration

	// slots bounds requests in flight; the subscription callback blocks
	// when it is full.
	slots    chan struct{}
	inflight sync.WaitGroup

	mu  sync.Mutex
	sub *comms.Subscription
}

// NewBridgeParams holds parameters for NewBridge.
type NewBridgeParams struct {
	Conn       *comms.Conn
	Dispatcher *dispatcher.Dispatcher
	// SubjectPrefix defaults to commsutil.DefaultSubjectPrefix.
	SubjectPrefix string
	// Queue defaults to commsutil.QueueGroup.
	Queue          string
	RequestTimeout time.Duration
	// MaxInFlight defaults to DefaultMaxInFlight.
	MaxInFlight int
}

// NewBridge creates a stopped Bridge.
func NewBridge(params NewBridgeParams) *Bridge {
	b := &Bridge{
		nc:      params.Conn,
		d:       params.Dispatcher,
		prefix:  strings.TrimSuffix(params.SubjectPrefix, "."),
		queue:   params.Queue,
		timeout: params.RequestTimeout,
	}
	if b.prefix == "" {
		b.prefix = commsutil.DefaultSubjectPrefix
	}
	if b.queue == "" {
		b.queue = commsutil.QueueGroup
	}
	if b.timeout <= 0 {
		b.timeout = DefaultRequestTimeout
	}
	limit := params.MaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}
	b.slots = make(chan struct{}, limit)
	return b
}

// Subject returns the wildcard subject the bridge listens on.
func (b *Bridge) Subject() string { return commsutil.OperationsWildcard(b.prefix) }

// Start queue-subscribes to the operations wildcard.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}
	sub, err := b.nc.QueueSubscribe(b.Subject(), b.queue, b.dispatch)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, b.Subject(), err)
	}
	b.sub = sub
	slog.Info(fmt.Sprintf("%s - Subscribed to %s (queue %s)", logPrefix, b.Subject(), b.queue))
	return nil
}

// Stop drains the subscription and waits for requests in flight, so
// messages already received are answered.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("%s - failed to drain %s: %w", logPrefix, b.Subject(), err)
	}
	// Drain completes asynchronously; no callback runs once the
	// subscription is invalid.
	deadline := time.Now().Add(b.timeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	b.inflight.Wait()
	return nil
}

// dispatch hands each message to its own goroutine so a slow operation
// never holds up the subscription.
func (b *Bridge) dispatch(msg *comms.Msg) {
	b.slots <- struct{}{}
	b.inflight.Add(1)
	go func() {
		defer func() {
			<-b.slots
			b.inflight.Done()
		}()
		b.handle(msg)
	}()
}

func (b *Bridge) handle(msg *comms.Msg) {
	var req Request
	if err := codec.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request on %s: %v", logPrefix, msg.Subject, err))
		b.respond(msg, &Response{
			Ok:     false,
			Status: http.StatusBadRequest,
			Error:  &hooks.ErrorDetail{Code: hooks.CodeBadRequest, Message: "Failed to decode request"},
		})
		return
	}

	route, ok := commsutil.RouteFromSubject(b.prefix, msg.Subject)
	if !ok {
		b.respond(msg, &Response{
			ID:     req.ID,
			Status: http.StatusNotFound,
			Error:  &hooks.ErrorDetail{Code: hooks.CodeNotFound, Message: "no route for subject " + msg.Subject},
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.deadline(req.Ctx))
	defer cancel()

	_ = b.d.Dispatch(ctx, toDispatch(&req, route, msg.Subject), func(resp *dispatcher.Response) error {
		return b.respond(msg, fromDispatch(req.ID, resp))
	})
}

// deadline honors a caller deadline shorter than the bridge timeout.
func (b *Bridge) deadline(ic *InvocationContext) time.Duration {
	if ic == nil {
		return b.timeout
	}
	ms := ic.DeadlineMs
	if ms <= 0 {
		ms = ic.TimeoutMs
	}
	if ms > 0 && time.Duration(ms)*time.Millisecond < b.timeout {
		return time.Duration(ms) * time.Millisecond
	}
	return b.timeout
}

func (b *Bridge) respond(msg *comms.Msg, resp *Response) error {
	data, err := codec.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return err
	}
	if msg.Reply == "" {
		slog.Warn(fmt.Sprintf("%s - request on %s has no reply subject", logPrefix, msg.Subject))
		return nil
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Subject, err))
		return err
	}
	return nil
}

func toDispatch(req *Request, route, subject string) *dispatcher.Request {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	header := http.Header{}
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	header.Set("Accept", "application/json")
	if len(req.Params) > 0 {
		header.Set("Content-Type", "application/json")
	}
	if req.Ctx != nil {
		id := req.Ctx.CorrelationID
		if id == "" {
			id = req.Ctx.RequestID
		}
		if id != "" {
			header.Set(reqctx.CorrelationHeader, id)
		}
	}

	return &dispatcher.Request{
		Method:     method,
		Path:       route,
		Header:     header,
		Body:       req.Params,
		RemoteAddr: "comms:" + subject,
	}
}

func fromDispatch(id string, resp *dispatcher.Response) *Response {
	out := &Response{
		ID:            id,
		Ok:            resp.OK(),
		Status:        resp.Status,
		CorrelationID: resp.CorrelationID,
	}
	switch {
	case resp.FilePath != "":
		out.Ok, out.Status = false, http.StatusNotFound
		out.Error = &hooks.ErrorDetail{Code: hooks.CodeNotFound, Message: "static files are served over HTTP only"}
	case !out.Ok:
		if body, ok := resp.Value.(*hooks.ErrorBody); ok {
			detail := body.Error
			out.Error = &detail
		} else {
			out.Error = &hooks.ErrorDetail{Code: hooks.CodeInternal, Message: http.StatusText(resp.Status)}
		}
	case len(resp.Body) > 0:
		out.Result = resp.Body
	}
	return out
}
