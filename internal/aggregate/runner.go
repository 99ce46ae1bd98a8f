package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Mode int

const (
	// ModeAsync runs each job on its own goroutine, detached from the
	// caller's cancellation.
	ModeAsync Mode = iota
	// ModeInline runs jobs before Dispatch returns.
	ModeInline
)

// ParseMode accepts "async" and "inline".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "async":
		return ModeAsync, nil
	case "inline":
		return ModeInline, nil
	default:
		return 0, fmt.Errorf("unknown sync mode %q", s)
	}
}

// Runner executes synchronization jobs. Job failures are logged and counted,
// never returned to the code that triggered them.
type Runner struct {
	mode    Mode
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
	wg      sync.WaitGroup
	locks   keyedMutex
}

type RunnerOption func(*Runner)

func WithTimeout(d time.Duration) RunnerOption { return func(r *Runner) { r.timeout = d } }

func WithMetrics(m *Metrics) RunnerOption { return func(r *Runner) { r.metrics = m } }

func WithRunnerLogger(l *slog.Logger) RunnerOption { return func(r *Runner) { r.logger = l } }

func NewRunner(mode Mode, opts ...RunnerOption) *Runner {
	r := &Runner{
		mode:    mode,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "sync")
	return r
}

// Job is one unit of synchronization work. Jobs with the same non-empty Key
// never run at the same time; the other fields only feed logs and metrics.
type Job struct {
	Key       string
	Aggregate string
	Owner     string
	RecordID  string
	Op        Op
	Run       func(ctx context.Context) error
}

// Go runs job according to the runner mode.
func (r *Runner) Go(ctx context.Context, job Job) {
	ctx = context.WithoutCancel(ctx)
	if r.mode == ModeInline {
		r.run(ctx, job)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, job)
	}()
}

func (r *Runner) run(ctx context.Context, job Job) {
	unlock := r.locks.lock(job.Key)
	defer unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.job(job.Aggregate, "failed", elapsed.Seconds())
		r.logger.Error("sync job failed",
			"aggregate", job.Aggregate,
			"owner", job.Owner,
			"id", job.RecordID,
			"op", job.Op.String(),
			"error", err,
		)
		return
	}
	r.metrics.job(job.Aggregate, "ok", elapsed.Seconds())
	r.logger.Debug("sync job done",
		"aggregate", job.Aggregate,
		"owner", job.Owner,
		"id", job.RecordID,
		"op", job.Op.String(),
		"duration", elapsed,
	)
}

// Wait blocks until every dispatched job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Dispatcher schedules bucket synchronization for record changes.
type Dispatcher[R any] interface {
	Dispatch(ctx context.Context, ch Change[R])
}

type binding[R, P any] struct {
	sync   *Synchronizer[R, P]
	runner *Runner
}

// Bind returns a Dispatcher that applies changes with s on runner r.
func Bind[R, P any](s *Synchronizer[R, P], r *Runner) Dispatcher[R] {
	return binding[R, P]{sync: s, runner: r}
}

func (b binding[R, P]) Dispatch(ctx context.Context, ch Change[R]) {
	b.runner.Go(ctx, Job{
		Key:       b.sync.Name() + "/" + ch.Owner + "/" + ch.ID,
		Aggregate: b.sync.Name(),
		Owner:     ch.Owner,
		RecordID:  ch.ID,
		Op:        ch.Op,
		Run: func(ctx context.Context) error {
			return b.sync.Apply(ctx, ch)
		},
	})
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	if key == "" {
		return func() {}
	}
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
