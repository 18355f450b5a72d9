// Package scheduler runs named background tasks on independent timers. Every
// tick is isolated: a failing or panicking action is reported and the task
// keeps its schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/metrics"
)

const logPrefix = "scheduler:scheduler"

// Task outcomes recorded per tick.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Action is the body of a task. The returned status is kept for Tasks().
type Action func() (string, error)

// FailureReporter receives tick failures. *hooks.Pipeline satisfies it.
type FailureReporter interface {
	ReportFailure(ctx context.Context, f *hooks.Failure)
}

// TaskError wraps an error returned or raised by one tick.
type TaskError struct {
	Task  string
	Tick  int64
	Err   error
	Stack string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s tick %d failed: %v", e.Task, e.Tick, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// TaskInfo is a snapshot of one scheduled task.
type TaskInfo struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval,omitempty"`
	CronSpec   string        `json:"cronSpec,omitempty"`
	Runs       int64         `json:"runs"`
	Failures   int64         `json:"failures"`
	LastStatus string        `json:"lastStatus,omitempty"`
	LastError  string        `json:"lastError,omitempty"`
	LastRunAt  time.Time     `json:"lastRunAt,omitempty"`
}

type task struct {
	mu     sync.Mutex
	info   TaskInfo
	action Action
}

// every fires at a fixed interval measured from the previous activation.
// cron.Every rounds to whole seconds, which is too coarse for millisecond
// intervals.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

// Scheduler owns the task set of one host.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	tasks    map[string]*task
	order    []string
	reporter FailureReporter
	metrics  *metrics.Collector
	running  bool
}

// NewSchedulerParams holds parameters for NewScheduler.
type NewSchedulerParams struct {
	Reporter FailureReporter
	Metrics  *metrics.Collector
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(params NewSchedulerParams) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		// A tick that is still running makes the next one of the same task skip.
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
		tasks:    make(map[string]*task),
		reporter: params.Reporter,
		metrics:  params.Metrics,
	}
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug(fmt.Sprintf("%s - cron: %s %v", logPrefix, msg, keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error(fmt.Sprintf("%s - cron: %s %v: %v", logPrefix, msg, keysAndValues, err))
}

var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule registers a task that runs every interval once the scheduler is
// started. Names are unique.
func (s *Scheduler) Schedule(name string, interval time.Duration, action Action) error {
	if interval <= 0 {
		return fmt.Errorf("%s - task %q: interval must be positive, got %s", logPrefix, name, interval)
	}
	return s.add(name, TaskInfo{Name: name, Interval: interval}, every(interval), action)
}

// ScheduleCron registers a task driven by a cron expression. Five fields,
// an optional leading seconds field, and descriptors like @every 5s are
// accepted.
func (s *Scheduler) ScheduleCron(name, spec string, action Action) error {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%s - task %q: invalid cron spec %q: %w", logPrefix, name, spec, err)
	}
	return s.add(name, TaskInfo{Name: name, CronSpec: spec}, sched, action)
}

func (s *Scheduler) add(name string, info TaskInfo, sched cron.Schedule, action Action) error {
	if name == "" {
		return fmt.Errorf("%s - task name is required", logPrefix)
	}
	if action == nil {
		return fmt.Errorf("%s - task %q: action is nil", logPrefix, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%s - task %q already scheduled", logPrefix, name)
	}
	t := &task{info: info, action: action}
	s.tasks[name] = t
	s.order = append(s.order, name)
	s.cron.Schedule(sched, cron.FuncJob(func() { s.tick(t) }))

	slog.Info(fmt.Sprintf("%s - scheduled task %s", logPrefix, describe(info)))
	return nil
}

// Start begins ticking. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	slog.Info(fmt.Sprintf("%s - started with %d task(s)", logPrefix, len(s.tasks)))
}

// Stop cancels all timers and waits for running ticks until ctx is done.
// It is safe to call more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		slog.Info(fmt.Sprintf("%s - stopped", logPrefix))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - waiting for running tasks: %w", logPrefix, ctx.Err())
	}
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tasks returns a snapshot of every task, in registration order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	tasks := make([]*task, len(names))
	for i, n := range names {
		tasks[i] = s.tasks[n]
	}
	s.mu.Unlock()

	out := make([]TaskInfo, len(tasks))
	for i, t := range tasks {
		t.mu.Lock()
		out[i] = t.info
		t.mu.Unlock()
	}
	return out
}

// Task returns the snapshot of one task.
func (s *Scheduler) Task(name string) (TaskInfo, bool) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskInfo{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info, true
}

// RunNow executes one tick of name synchronously, outside its timer.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s - task %q not found", logPrefix, name)
	}
	return s.tick(t)
}

func (s *Scheduler) tick(t *task) error {
	t.mu.Lock()
	t.info.Runs++
	n := t.info.Runs
	t.mu.Unlock()

	status, err := run(t.info.Name, n, t.action)

	t.mu.Lock()
	t.info.LastRunAt = time.Now()
	t.info.LastStatus = status
	t.info.LastError = ""
	if err != nil {
		t.info.Failures++
		t.info.LastError = err.Error()
	}
	t.mu.Unlock()

	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
		s.metrics.ObserveTask(t.info.Name, OutcomeFailed)
		if s.reporter != nil {
			s.reporter.ReportFailure(context.Background(), &hooks.Failure{
				Source: hooks.SourceTask,
				Task:   t.info.Name,
				Err:    err,
			})
		}
		return err
	}
	slog.Debug(fmt.Sprintf("%s - task %s tick %d: %s", logPrefix, t.info.Name, n, status))
	s.metrics.ObserveTask(t.info.Name, OutcomeOK)
	return nil
}

func run(name string, n int64, action Action) (status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{Task: name, Tick: n, Err: fmt.Errorf("panic: %v", r), Stack: string(debug.Stack())}
		}
	}()
	status, err = action()
	if err != nil {
		err = &TaskError{Task: name, Tick: n, Err: err}
	}
	return status, err
}

func describe(info TaskInfo) string {
	if info.CronSpec != "" {
		return fmt.Sprintf("%s (cron %q)", info.Name, info.CronSpec)
	}
	return fmt.Sprintf("%s (every %s)", info.Name, info.Interval)
}
