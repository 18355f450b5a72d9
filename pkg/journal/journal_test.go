package journal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morezero/operations-host/pkg/db"
	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/metrics"
	"github.com/morezero/operations-host/pkg/reqctx"
)

const journalTestPrefix = "journal:journal_test"

type memStore struct {
	mu      sync.Mutex
	rows    []*db.Invocation
	batches int
	entered chan struct{}
	block   chan struct{}
	fail    bool
}

func (s *memStore) InsertInvocations(_ context.Context, invs []*db.Invocation) error {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database unavailable")
	}
	s.batches++
	s.rows = append(s.rows, invs...)
	return nil
}

func (s *memStore) snapshot() []*db.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*db.Invocation(nil), s.rows...)
}

func closeJournal(t *testing.T, j *Journal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.Close(ctx); err != nil {
		t.Fatalf("%s - Close error: %v", journalTestPrefix, err)
	}
}

func TestJournal_RecordsRequestsAndFailures(t *testing.T) {
	store := &memStore{}
	j := New(NewJournalParams{Store: store, BatchSize: 2, FlushInterval: time.Hour})

	rc := reqctx.New(context.Background(), http.MethodGet, "/sayhi", http.Header{reqctx.CorrelationHeader: {"corr-1"}}, nil)
	j.After(rc, &hooks.Result{Route: "/sayhi", Status: 200, Elapsed: 1500 * time.Microsecond})
	j.HandleError(context.Background(), &hooks.Failure{
		Source: hooks.SourceRequest, Route: "/add", Status: http.StatusBadRequest, Err: errors.New("missing a"),
	})
	j.HandleError(context.Background(), &hooks.Failure{Source: hooks.SourceTask, Task: "beat", Err: errors.New("tick")})

	closeJournal(t, j)

	rows := store.snapshot()
	if len(rows) != 3 || j.Written() != 3 || j.Dropped() != 0 {
		t.Fatalf("%s - rows = %d written = %d dropped = %d", journalTestPrefix, len(rows), j.Written(), j.Dropped())
	}
	if store.batches != 2 {
		t.Errorf("%s - batches = %d, want 2 (one full batch, one drained on close)", journalTestPrefix, store.batches)
	}

	ok := rows[0]
	if ok.Outcome != metrics.OutcomeOK || ok.CorrelationID != "corr-1" || ok.DurationMs != 1.5 || ok.Error != nil {
		t.Errorf("%s - request row = %+v", journalTestPrefix, ok)
	}
	if rows[1].Outcome != metrics.OutcomeBindingFailed || *rows[1].Error != "missing a" {
		t.Errorf("%s - binding row = %+v", journalTestPrefix, rows[1])
	}
	if rows[2].Outcome != metrics.OutcomeFailed || rows[2].Task != "beat" || rows[2].Source != hooks.SourceTask {
		t.Errorf("%s - task row = %+v", journalTestPrefix, rows[2])
	}
}

func TestJournal_FlushInterval(t *testing.T) {
	store := &memStore{}
	j := New(NewJournalParams{Store: store, FlushInterval: 10 * time.Millisecond})
	defer closeJournal(t, j)

	j.HandleError(context.Background(), &hooks.Failure{Source: hooks.SourceTask, Task: "beat"})

	deadline := time.Now().Add(2 * time.Second)
	for len(store.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%s - entry not flushed by the ticker", journalTestPrefix)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJournal_FullBufferDrops(t *testing.T) {
	m := metrics.NewCollector("journal_test")
	store := &memStore{entered: make(chan struct{}, 1), block: make(chan struct{})}
	j := New(NewJournalParams{Store: store, Metrics: m, Buffer: 1, BatchSize: 1, FlushInterval: time.Hour})

	fail := func(task string) {
		start := time.Now()
		j.HandleError(context.Background(), &hooks.Failure{Source: hooks.SourceTask, Task: task})
		if time.Since(start) > 100*time.Millisecond {
			t.Errorf("%s - recording blocked on a stalled store", journalTestPrefix)
		}
	}

	fail("first")
	<-store.entered
	fail("second")
	fail("third")

	if j.Dropped() != 1 {
		t.Errorf("%s - dropped = %d, want 1", journalTestPrefix, j.Dropped())
	}

	close(store.block)
	closeJournal(t, j)
	if j.Written() != 2 {
		t.Errorf("%s - written = %d, want 2", journalTestPrefix, j.Written())
	}

	fail("after close")
	if j.Dropped() != 2 {
		t.Errorf("%s - entries after Close must be dropped, dropped = %d", journalTestPrefix, j.Dropped())
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "journal_test_journal_dropped_total 2") {
		t.Errorf("%s - dropped counter missing from metrics", journalTestPrefix)
	}
}

func TestJournal_FailedWriteCountsAsDropped(t *testing.T) {
	store := &memStore{fail: true}
	j := New(NewJournalParams{Store: store, BatchSize: 1})

	j.HandleError(context.Background(), &hooks.Failure{Source: hooks.SourceTask})
	closeJournal(t, j)
	closeJournal(t, j)

	if j.Written() != 0 || j.Dropped() != 1 {
		t.Errorf("%s - written = %d dropped = %d", journalTestPrefix, j.Written(), j.Dropped())
	}
}

func TestJournal_InPipeline(t *testing.T) {
	store := &memStore{}
	j := New(NewJournalParams{Store: store})

	p := hooks.NewPipeline(nil)
	p.AddPost(j)
	p.AddErrorHandler(j)

	rc := reqctx.New(context.Background(), http.MethodGet, "/x", nil, nil)
	p.RunPost(rc, &hooks.Result{Route: "/x", Status: 200})
	p.ReportFailure(context.Background(), &hooks.Failure{Source: hooks.SourceRequest, Route: "/x", Status: 500})

	closeJournal(t, j)
	if got := len(store.snapshot()); got != 2 {
		t.Errorf("%s - rows = %d, want 2", journalTestPrefix, got)
	}
}
