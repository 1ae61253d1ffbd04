package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"github.com/mist-hpc/mist/internal/config"
	"github.com/mist-hpc/mist/internal/events"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	"github.com/mist-hpc/mist/pkg/log"
	"github.com/mist-hpc/mist/pkg/metrics"
	"go.uber.org/zap"
)

const finalizeTimeout = 5 * time.Second

// EventEmitter receives job lifecycle events.
type EventEmitter interface {
	Emit(ctx context.Context, kind string, v any) error
}

type Option func(d *Dispatcher)

func WithBackoff(s Strategy) Option {
	return func(d *Dispatcher) {
		d.backoff = s
	}
}

func WithEvents(e EventEmitter) Option {
	return func(d *Dispatcher) {
		d.events = e
	}
}

// WithRetention enables the sweeper removing terminal jobs older than period.
func WithRetention(period time.Duration) Option {
	return func(d *Dispatcher) {
		d.retention = period
	}
}

// Dispatcher moves pending jobs to a bounded pool of executions. A job is
// claimed with a pending -> running transition only after a pool slot was
// acquired, so at most PoolSize jobs are running at any time.
type Dispatcher struct {
	jobs      store.Job
	executor  Executor
	cfg       config.Dispatcher
	backoff   Strategy
	events    EventEmitter
	retention time.Duration

	slots    chan struct{}
	notifyCh chan struct{}

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
	wg     sync.WaitGroup

	log    *zap.SugaredLogger
	tracer *log.StructuredLogger
}

func New(jobs store.Job, executor Executor, cfg config.Dispatcher, opts ...Option) *Dispatcher {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	d := &Dispatcher{
		jobs:     jobs,
		executor: executor,
		cfg:      cfg,
		backoff:  NewConstant(cfg.RetryDelay),
		slots:    make(chan struct{}, cfg.PoolSize),
		notifyCh: make(chan struct{}, 1),
		active:   map[uuid.UUID]context.CancelFunc{},
		log:      zap.S().Named("dispatcher"),
		tracer:   log.NewDebugLogger("dispatcher"),
	}
	for _, o := range opts {
		o(d)
	}

	metrics.UpdateFreeSlotsMetric(cfg.PoolSize)
	return d
}

// Notify wakes the dispatch loop up without waiting for the next tick.
func (d *Dispatcher) Notify() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

// Cancel cancels the execution context of job id if this dispatcher runs it.
func (d *Dispatcher) Cancel(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cancel, found := d.active[id]
	if found {
		cancel()
	}
	return found
}

// Running returns the number of executions in flight.
func (d *Dispatcher) Running() int {
	return len(d.slots)
}

// Status is a point in time view of the pool.
type Status struct {
	PoolSize int
	Running  int
	Free     int
	// Jobs holds the ids of the jobs this dispatcher has claimed or is claiming.
	Jobs []uuid.UUID
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	ids := make([]uuid.UUID, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	running := len(d.slots)
	return Status{
		PoolSize: cap(d.slots),
		Running:  running,
		Free:     cap(d.slots) - running,
		Jobs:     ids,
	}
}

// Run dispatches until ctx is done, then waits for the in-flight executions.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Infow("dispatcher started", "pool_size", d.cfg.PoolSize, "tick", d.cfg.TickInterval)

	ticker := jitterbug.New(d.cfg.TickInterval, &jitterbug.Norm{Stdev: d.cfg.TickInterval / 10, Mean: 0})
	defer ticker.Stop()
	reaper := jitterbug.New(d.cfg.ReapInterval, &jitterbug.Norm{Stdev: d.cfg.ReapInterval / 10, Mean: 0})
	defer reaper.Stop()

	var sweepC <-chan time.Time
	if d.retention > 0 {
		sweeper := jitterbug.New(d.cfg.ReapInterval, &jitterbug.Norm{Stdev: d.cfg.ReapInterval / 10, Mean: 0})
		defer sweeper.Stop()
		sweepC = sweeper.C
	}

	d.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping, waiting for running jobs")
			d.wg.Wait()
			d.log.Info("dispatcher stopped")
			return nil
		case <-reaper.C:
			d.reap(ctx)
			continue
		case <-sweepC:
			d.sweep(ctx)
			continue
		case <-ticker.C:
		case <-d.notifyCh:
		}
		d.dispatch(ctx)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	free := cap(d.slots) - len(d.slots)
	if free == 0 {
		return
	}

	pending, err := d.jobs.List(ctx,
		store.NewJobQueryFilter().ByState(model.JobStatePending),
		store.NewJobQueryOptions().WithLimit(free))
	if err != nil {
		if ctx.Err() == nil {
			d.log.Errorw("failed to list pending jobs", "error", err)
		}
		return
	}

	for _, job := range pending {
		select {
		case d.slots <- struct{}{}:
		default:
			return
		}

		if !d.claim(ctx, job) {
			<-d.slots
		}
	}
	metrics.UpdateFreeSlotsMetric(cap(d.slots) - len(d.slots))
}

// claim moves job to running and starts its execution. The caller holds a slot.
func (d *Dispatcher) claim(parent context.Context, job model.Job) bool {
	// the cancel func is registered before the claim so a cancel racing the
	// start of the execution still reaches it
	ctx, cancel := context.WithTimeout(parent, d.cfg.JobTimeout)
	d.track(job.ID, cancel)

	claimed, err := d.jobs.Transition(parent, job.ID, model.JobStatePending, model.JobStateRunning, nil)
	if err != nil {
		d.untrack(job.ID)
		cancel()
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrRecordNotFound) {
			d.log.Debugw("lost claim", "job_id", job.ID, "error", err)
		} else if parent.Err() == nil {
			d.log.Errorw("failed to claim job", "job_id", job.ID, "error", err)
		}
		return false
	}

	metrics.IncreaseJobTransitionMetric(string(model.JobStatePending), string(model.JobStateRunning))
	metrics.IncreaseRunningJobsMetric()
	d.emit(events.JobStartedKind, claimed, model.JobStatePending)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.untrack(claimed.ID)
			cancel()
			metrics.DecreaseRunningJobsMetric()
			<-d.slots
			metrics.UpdateFreeSlotsMetric(cap(d.slots) - len(d.slots))
			// a slot is free again
			d.Notify()
		}()
		d.execute(ctx, parent, claimed)
	}()
	return true
}

func (d *Dispatcher) execute(ctx, parent context.Context, job *model.Job) {
	tracer := d.tracer.WithContext(ctx).
		Operation("execute_job").
		WithUUID("job_id", job.ID).
		WithString("owner", job.Owner).
		Build()

	start := time.Now()
	result, err := d.runWithRetries(ctx, job, tracer)
	elapsed := time.Since(start)

	var (
		to     model.JobState
		record string
	)
	switch {
	case err == nil:
		to, record = model.JobStateSucceeded, result
	case parent.Err() != nil:
		to, record = model.JobStateFailed, "interrupted: dispatcher stopped"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		to, record = model.JobStateFailed, fmt.Sprintf("timed out after %s", d.cfg.JobTimeout)
	case ctx.Err() != nil:
		// cancelled through the registry, nothing left to record
		metrics.ObserveJobExecutionMetric(string(model.JobStateCancelled), elapsed)
		tracer.Step("cancelled").Log()
		return
	default:
		to, record = model.JobStateFailed, err.Error()
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	finished, terr := d.jobs.Transition(finalCtx, job.ID, model.JobStateRunning, to, &record)
	if terr != nil {
		if errors.Is(terr, store.ErrConflict) {
			tracer.Step("discarded_late_completion").WithString("outcome", string(to)).Log()
			return
		}
		tracer.Error(terr).WithString("outcome", string(to)).Log()
		return
	}

	metrics.IncreaseJobTransitionMetric(string(model.JobStateRunning), string(to))
	metrics.ObserveJobExecutionMetric(string(to), elapsed)
	d.emit(events.JobFinishedKind, finished, model.JobStateRunning)

	if to == model.JobStateSucceeded {
		tracer.Success().Log()
	} else {
		tracer.Step("failed").WithString("result", record).Log()
	}
}

func (d *Dispatcher) runWithRetries(ctx context.Context, job *model.Job, tracer *log.OperationTracer) (string, error) {
	for attempt := 1; ; attempt++ {
		result, err := d.safeExecute(ctx, job.Payload)
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return result, err
		}
		if attempt > d.cfg.MaxRetries {
			return "", fmt.Errorf("retries exhausted after %d attempts: %w", attempt, err)
		}

		// a job cancelled in the meantime is not retried
		current, gerr := d.jobs.Get(ctx, job.ID)
		if gerr == nil && current.State != model.JobStateRunning {
			return "", context.Canceled
		}

		metrics.IncreaseJobRetriesMetric()
		delay := d.backoff.Delay(attempt)
		tracer.Step("retry").WithInt("attempt", attempt).WithString("delay", delay.String()).WithString("error", err.Error()).Log()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
}

// safeExecute turns an executor panic into an error.
func (d *Dispatcher) safeExecute(ctx context.Context, payload string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("executor panicked", "panic", r)
			result, err = "", fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return d.executor.Execute(ctx, payload)
}

// reap fails running jobs nobody executes, typically left by a previous process.
func (d *Dispatcher) reap(ctx context.Context) {
	if d.cfg.StaleThreshold <= 0 {
		return
	}

	stale, err := d.jobs.List(ctx,
		store.NewJobQueryFilter().
			ByState(model.JobStateRunning).
			UpdatedBefore(time.Now().Add(-d.cfg.StaleThreshold)),
		nil)
	if err != nil {
		if ctx.Err() == nil {
			d.log.Errorw("failed to list stale jobs", "error", err)
		}
		return
	}

	record := "abandoned: no dispatcher is executing this job"
	for _, job := range stale {
		if d.tracked(job.ID) {
			continue
		}
		reaped, err := d.jobs.Transition(ctx, job.ID, model.JobStateRunning, model.JobStateFailed, &record)
		if err != nil {
			if !errors.Is(err, store.ErrConflict) {
				d.log.Errorw("failed to reap job", "job_id", job.ID, "error", err)
			}
			continue
		}
		metrics.IncreaseJobsReapedMetric()
		metrics.IncreaseJobTransitionMetric(string(model.JobStateRunning), string(model.JobStateFailed))
		d.emit(events.JobReapedKind, reaped, model.JobStateRunning)
		d.log.Warnw("reaped stale job", "job_id", job.ID, "updated_at", job.UpdatedAt)
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	deleted, err := d.jobs.DeleteFinishedBefore(ctx, time.Now().Add(-d.retention))
	if err != nil {
		if ctx.Err() == nil {
			d.log.Errorw("failed to delete finished jobs", "error", err)
		}
		return
	}
	if deleted > 0 {
		d.log.Infow("deleted finished jobs", "count", deleted, "retention", d.retention)
	}
}

func (d *Dispatcher) track(id uuid.UUID, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[id] = cancel
}

func (d *Dispatcher) untrack(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}

func (d *Dispatcher) tracked(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, found := d.active[id]
	return found
}

func (d *Dispatcher) emit(kind string, job *model.Job, from model.JobState) {
	if d.events == nil {
		return
	}
	if err := d.events.Emit(context.Background(), kind, events.JobEvent{
		JobID:         job.ID.String(),
		Owner:         job.Owner,
		Organization:  job.Organization,
		State:         string(job.State),
		PreviousState: string(from),
		Result:        job.Result,
		Timestamp:     job.UpdatedAt,
	}); err != nil {
		d.log.Errorw("failed to emit job event", "kind", kind, "job_id", job.ID, "error", err)
	}
}
