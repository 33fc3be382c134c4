package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/analytics-dashboard/internal/query"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffStep = 200 * time.Millisecond

	// A lifecycle emits at most loading plus one terminal state.
	streamBuffer = 4
)

// Fetcher executes an effective query against the analytics service.
type Fetcher interface {
	Fetch(ctx context.Context, q query.Description) ([]query.Row, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Options zero values fall back to 3 attempts and a 200ms backoff step; the
// step cannot be disabled. Tests replace Sleep to skip the real wait.
type Options struct {
	MaxAttempts    int
	BackoffStep    time.Duration
	AttemptTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.QueryMetrics
	Sleep          SleepFunc
	Now            func() time.Time
}

// Orchestrator runs the fetch lifecycle of one widget. Each Execute starts a
// new generation; only the latest non-cancelled generation may emit.
type Orchestrator struct {
	fetcher        Fetcher
	maxAttempts    int
	backoffStep    time.Duration
	attemptTimeout time.Duration
	logg           *logger.Logger
	metrics        *metrics.QueryMetrics
	sleep          SleepFunc
	now            func() time.Time

	mu         sync.Mutex
	generation uint64
	current    *lifecycle
	state      Result
	lastRows   []query.Row
}

type lifecycle struct {
	generation uint64
	query      query.Description
	dateRange  query.DateRange
	ctx        context.Context
	cancel     context.CancelFunc

	// guarded by Orchestrator.mu
	cancelled bool
	attempt   int
}

func New(fetcher Fetcher, opts Options) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator requires a fetcher")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffStep <= 0 {
		opts.BackoffStep = defaultBackoffStep
	}
	if opts.AttemptTimeout < 0 {
		opts.AttemptTimeout = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		fetcher:        fetcher,
		maxAttempts:    opts.MaxAttempts,
		backoffStep:    opts.BackoffStep,
		attemptTimeout: opts.AttemptTimeout,
		logg:           opts.Logger,
		metrics:        opts.Metrics,
		sleep:          opts.Sleep,
		now:            opts.Now,
		state:          Result{Status: StatusIdle, Rows: []query.Row{}},
		lastRows:       []query.Row{},
	}, nil
}

// Execute supersedes any running lifecycle and starts a new one for q under
// the given date range. The returned stream is closed when the lifecycle ends;
// a stream that closes without a terminal state was cancelled or superseded.
func (o *Orchestrator) Execute(ctx context.Context, q query.Description, r query.DateRange) <-chan Result {
	return o.start(ctx, q.Clone(), r)
}

// Refetch re-runs the most recent query and date range as a new generation.
// Without a prior Execute the stream yields a single idle state.
func (o *Orchestrator) Refetch(ctx context.Context) <-chan Result {
	o.mu.Lock()
	cur := o.current
	o.mu.Unlock()

	if cur == nil {
		out := make(chan Result, 1)
		out <- Result{Status: StatusIdle, Rows: []query.Row{}}
		close(out)
		return out
	}
	return o.start(ctx, cur.query, cur.dateRange)
}

// Cancel stops the current lifecycle. Nothing it does afterwards is emitted.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	lc := o.current
	if lc == nil || lc.cancelled {
		return
	}
	lc.cancelled = true
	lc.cancel()
	if !o.state.Status.Terminal() {
		o.state.Status = StatusIdle
		o.state.Rows = o.lastRows
	}
}

// Snapshot returns the latest emitted state.
func (o *Orchestrator) Snapshot() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

func (o *Orchestrator) start(parent context.Context, q query.Description, r query.DateRange) <-chan Result {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	out := make(chan Result, streamBuffer)

	o.mu.Lock()
	if prev := o.current; prev != nil {
		// best effort; stale emissions are dropped by the generation check anyway
		prev.cancel()
	}
	o.generation++
	lc := &lifecycle{
		generation: o.generation,
		query:      q,
		dateRange:  r,
		ctx:        ctx,
		cancel:     cancel,
	}
	o.current = lc
	o.mu.Unlock()

	go o.run(lc, out)
	return out
}

func (o *Orchestrator) run(lc *lifecycle, out chan<- Result) {
	defer close(out)
	defer lc.cancel()
	defer o.settle(lc)

	started := o.now()
	logCtx := o.logg.WithGeneration(lc.ctx, lc.generation)

	if !lc.query.Executable() {
		o.emit(lc, out, Result{Status: StatusSuccess, Rows: []query.Row{}})
		return
	}

	effective := query.Effective(lc.query, lc.dateRange)
	key := query.Key(effective)
	logCtx = o.logg.WithQueryKey(logCtx, key)

	if !o.emit(lc, out, Result{Status: StatusLoading, Key: key}) {
		return
	}

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if !o.beginAttempt(lc, attempt) {
			return
		}
		o.logg.Debug(o.logg.WithField(logCtx, "attempt", attempt), "analytics query attempt")

		rows, err := o.fetch(lc.ctx, effective)
		if !o.live(lc) {
			o.metrics.IncSuppressed()
			o.logg.Debug(logCtx, "discarding response of abandoned query")
			return
		}

		if err == nil {
			o.metrics.IncAttempt("ok")
			if rows == nil {
				rows = []query.Row{}
			}
			o.finish(logCtx, lc, out, Result{Status: StatusSuccess, Rows: rows, Key: key}, started)
			return
		}

		code := classify(err)
		if code == pkgerrors.CodeNetwork {
			o.metrics.IncAttempt("network")
		} else {
			o.metrics.IncAttempt("application")
		}

		if code != pkgerrors.CodeNetwork || attempt == o.maxAttempts {
			o.logg.Error(logCtx, "analytics query failed", err)
			o.finish(logCtx, lc, out, Result{Status: StatusError, Error: newErrorInfo(err, attempt), Key: key}, started)
			return
		}

		delay := o.backoffStep * time.Duration(attempt)
		o.logg.Warn(o.logg.WithFields(logCtx, map[string]any{
			"attempt": attempt,
			"backoff": delay.String(),
			"error":   err.Error(),
		}), "analytics query attempt failed; retrying")

		if err := o.sleep(lc.ctx, delay); err != nil {
			o.logg.Debug(logCtx, "backoff interrupted")
			return
		}
	}
}

// settle leaves an abandoned lifecycle idle with the last known rows when it is
// still the current generation, e.g. after the caller's context was cancelled.
func (o *Orchestrator) settle(lc *lifecycle) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if lc.generation != o.generation || o.state.Status.Terminal() {
		return
	}
	o.state.Status = StatusIdle
	o.state.Rows = o.lastRows
	o.state.Error = nil
}

func (o *Orchestrator) fetch(ctx context.Context, q query.Description) ([]query.Row, error) {
	if o.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.attemptTimeout)
		defer cancel()
	}
	rows, err := o.fetcher.Fetch(ctx, q)
	if err != nil && pkgerrors.As(err) == nil && ctx.Err() != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("attempt timed out after %s", o.attemptTimeout))
	}
	return rows, err
}

func (o *Orchestrator) finish(ctx context.Context, lc *lifecycle, out chan<- Result, r Result, started time.Time) {
	if !o.emit(lc, out, r) {
		return
	}
	elapsed := o.now().Sub(started)
	o.metrics.ObserveOutcome(string(r.Status), elapsed)
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"status":      string(r.Status),
		"rows":        len(r.Rows),
		"duration_ms": elapsed.Milliseconds(),
	}), "analytics query settled")
}

// emit publishes r unless lc was cancelled or superseded. The stream buffer
// holds every emission of a lifecycle, so the send never blocks.
func (o *Orchestrator) emit(lc *lifecycle, out chan<- Result, r Result) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.liveLocked(lc) {
		o.metrics.IncSuppressed()
		return false
	}

	r.Generation = lc.generation
	r.Attempt = lc.attempt
	switch r.Status {
	case StatusSuccess:
		o.lastRows = r.Rows
	case StatusLoading, StatusError:
		r.Rows = o.lastRows
	}
	o.state = r
	out <- r
	return true
}

func (o *Orchestrator) beginAttempt(lc *lifecycle, attempt int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.liveLocked(lc) {
		return false
	}
	lc.attempt = attempt
	o.state.Attempt = attempt
	return true
}

func (o *Orchestrator) live(lc *lifecycle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.liveLocked(lc)
}

func (o *Orchestrator) liveLocked(lc *lifecycle) bool {
	return !lc.cancelled && lc.generation == o.generation && lc.ctx.Err() == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
