package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/operations-host/pkg/metrics"
	"github.com/morezero/operations-host/pkg/reqctx"
)

const logPrefix = "hooks:pipeline"

// Hook stages, used in logs and metrics.
const (
	StagePre   = "pre"
	StagePost  = "post"
	StageError = "error"
)

// Pipeline is the ordered hook configuration of one host. Hooks are added
// during configuration; the Run methods are safe for concurrent use once the
// host is serving.
type Pipeline struct {
	pre     []PreHook
	post    []PostHook
	errs    []ErrorHandler
	metrics *metrics.Collector
}

// NewPipeline creates an empty pipeline. m may be nil.
func NewPipeline(m *metrics.Collector) *Pipeline {
	return &Pipeline{metrics: m}
}

// AddPre appends pre-hooks.
func (p *Pipeline) AddPre(h ...PreHook) { p.pre = append(p.pre, h...) }

// AddPost appends post-hooks.
func (p *Pipeline) AddPost(h ...PostHook) { p.post = append(p.post, h...) }

// AddErrorHandler appends error handlers.
func (p *Pipeline) AddErrorHandler(h ...ErrorHandler) { p.errs = append(p.errs, h...) }

// RunPre runs the pre-hooks in order and returns the first Reply. A failing
// hook is logged and skipped.
func (p *Pipeline) RunPre(rc *reqctx.RequestContext) *Reply {
	for i, h := range p.pre {
		var reply *Reply
		err := p.guard(StagePre, i, func() error {
			var err error
			reply, err = h.Before(rc)
			return err
		})
		if err != nil {
			continue
		}
		if reply != nil {
			slog.Debug(fmt.Sprintf("%s - pre-hook %d answered %s with %d", logPrefix, i, rc.RoutePath, reply.Status))
			return reply
		}
	}
	return nil
}

// RunPost runs every post-hook; failures are isolated.
func (p *Pipeline) RunPost(rc *reqctx.RequestContext, res *Result) {
	for i, h := range p.post {
		_ = p.guard(StagePost, i, func() error { return h.After(rc, res) })
	}
}

// ReportFailure hands f to every error handler. It never fails.
func (p *Pipeline) ReportFailure(ctx context.Context, f *Failure) {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}
	for i, h := range p.errs {
		_ = p.guard(StageError, i, func() error { return h.HandleError(ctx, f) })
	}
}

// guard calls fn, turning a panic into an error. Errors are logged and counted.
func (p *Pipeline) guard(stage string, index int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			slog.Error(fmt.Sprintf("%s - %s hook %d failed: %v", logPrefix, stage, index, err))
			p.metrics.HookFailed(stage)
		}
	}()
	return fn()
}
