// Package journal records every dispatched request and every failure into
// the invocation store. Entries go through a bounded buffer drained by a
// single writer goroutine, so recording never blocks a request; when the
// buffer is full the entry is dropped and counted.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/operations-host/pkg/db"
	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/metrics"
	"github.com/morezero/operations-host/pkg/reqctx"
)

const logPrefix = "journal:journal"

// Defaults applied by New.
const (
	DefaultBuffer        = 1024
	DefaultBatchSize     = 64
	DefaultFlushInterval = time.Second
	writeTimeout         = 5 * time.Second
)

// Store persists batches of invocations. *db.Repository satisfies it.
type Store interface {
	InsertInvocations(ctx context.Context, invs []*db.Invocation) error
}

// Journal is a hooks.PostHook and a hooks.ErrorHandler.
type Journal struct {
	store         Store
	metrics       *metrics.Collector
	batchSize     int
	flushInterval time.Duration

	entries   chan *db.Invocation
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	written atomic.Int64
	dropped atomic.Int64
}

// NewJournalParams holds parameters for New.
type NewJournalParams struct {
	Store         Store
	Metrics       *metrics.Collector
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

// New creates a Journal and starts its writer.
func New(params NewJournalParams) *Journal {
	j := &Journal{
		store:         params.Store,
		metrics:       params.Metrics,
		batchSize:     params.BatchSize,
		flushInterval: params.FlushInterval,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	buffer := params.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if j.batchSize <= 0 {
		j.batchSize = DefaultBatchSize
	}
	if j.flushInterval <= 0 {
		j.flushInterval = DefaultFlushInterval
	}
	j.entries = make(chan *db.Invocation, buffer)

	go j.run()
	return j
}

// After records a successful request.
func (j *Journal) After(rc *reqctx.RequestContext, res *hooks.Result) error {
	j.enqueue(&db.Invocation{
		Source:        hooks.SourceRequest,
		Route:         res.Route,
		CorrelationID: rc.CorrelationID,
		Status:        res.Status,
		Outcome:       metrics.OutcomeOK,
		DurationMs:    float64(res.Elapsed.Microseconds()) / 1000,
		Created:       time.Now().UTC(),
	})
	return nil
}

// HandleError records a request or task failure.
func (j *Journal) HandleError(_ context.Context, f *hooks.Failure) error {
	outcome := metrics.OutcomeFailed
	if f.Source == hooks.SourceRequest && f.Status == http.StatusBadRequest {
		outcome = metrics.OutcomeBindingFailed
	}
	var msg *string
	if f.Err != nil {
		s := f.Err.Error()
		msg = &s
	}
	created := f.At
	if created.IsZero() {
		created = time.Now()
	}
	j.enqueue(&db.Invocation{
		Source:        f.Source,
		Route:         f.Route,
		Task:          f.Task,
		CorrelationID: f.CorrelationID,
		Status:        f.Status,
		Outcome:       outcome,
		Error:         msg,
		Created:       created.UTC(),
	})
	return nil
}

func (j *Journal) enqueue(inv *db.Invocation) {
	if j.closed.Load() {
		j.drop()
		return
	}
	select {
	case j.entries <- inv:
	default:
		j.drop()
	}
}

func (j *Journal) drop() {
	j.dropped.Add(1)
	j.metrics.JournalDropped()
}

func (j *Journal) run() {
	defer close(j.done)

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	batch := make([]*db.Invocation, 0, j.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		j.write(batch)
		batch = make([]*db.Invocation, 0, j.batchSize)
	}

	for {
		select {
		case inv := <-j.entries:
			batch = append(batch, inv)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-j.quit:
			for {
				select {
				case inv := <-j.entries:
					batch = append(batch, inv)
					if len(batch) >= j.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (j *Journal) write(batch []*db.Invocation) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.store.InsertInvocations(ctx, batch); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write %d entries: %v", logPrefix, len(batch), err))
		for range batch {
			j.drop()
		}
		return
	}
	j.written.Add(int64(len(batch)))
}

// Close stops accepting entries, writes what is buffered and waits for the
// writer until ctx is done. It is safe to call more than once.
func (j *Journal) Close(ctx context.Context) error {
	j.closeOnce.Do(func() {
		j.closed.Store(true)
		close(j.quit)
	})
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - close: %w", logPrefix, errors.Join(ctx.Err(), fmt.Errorf("%d entries pending", len(j.entries))))
	}
}

// Written is the number of entries stored so far.
func (j *Journal) Written() int64 { return j.written.Load() }

// Dropped is the number of entries lost to a full buffer, a closed journal
// or a failed write.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }
