package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/config"
	"github.com/mist-hpc/mist/internal/dispatcher"
	"github.com/mist-hpc/mist/internal/events"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	"github.com/mist-hpc/mist/pkg/log"
	"github.com/mist-hpc/mist/pkg/metrics"
)

// Dispatcher is the part of the dispatcher the gateway drives.
type Dispatcher interface {
	Notify()
	Cancel(id uuid.UUID) bool
	Status() dispatcher.Status
}

type PayloadValidator interface {
	Validate(payload string) error
}

type EventEmitter interface {
	Emit(ctx context.Context, kind string, v any) error
}

type JobServiceOption func(s *JobService)

func WithPayloadValidator(v PayloadValidator) JobServiceOption {
	return func(s *JobService) {
		s.validator = v
	}
}

func WithEvents(e EventEmitter) JobServiceOption {
	return func(s *JobService) {
		s.events = e
	}
}

// WithSubmitRateLimit bounds the submissions of every owner. A zero rate disables the limit.
func WithSubmitRateLimit(cfg config.RateLimit) JobServiceOption {
	return func(s *JobService) {
		if cfg.SubmitPerSecond > 0 {
			s.limiter = newOwnerLimiter(cfg.SubmitPerSecond, cfg.Burst)
		}
	}
}

type JobService struct {
	store      store.Store
	dispatcher Dispatcher
	validator  PayloadValidator
	events     EventEmitter
	limiter    *ownerLimiter
	logger     *log.StructuredLogger
}

func NewJobService(s store.Store, d Dispatcher, opts ...JobServiceOption) *JobService {
	js := &JobService{
		store:      s,
		dispatcher: d,
		logger:     log.NewDebugLogger("job_service"),
	}
	for _, o := range opts {
		o(js)
	}
	return js
}

type JobFilterFunc func(f *JobFilter)

type JobFilter struct {
	States []model.JobState
	// All lists the jobs of every owner. Administrators only.
	All   bool
	Limit int
}

func NewJobFilter(filters ...JobFilterFunc) *JobFilter {
	f := &JobFilter{}
	for _, fn := range filters {
		fn(f)
	}
	return f
}

func (f *JobFilter) WithOption(o JobFilterFunc) *JobFilter {
	o(f)
	return f
}

func WithStates(states ...model.JobState) JobFilterFunc {
	return func(f *JobFilter) {
		f.States = append(f.States, states...)
	}
}

func WithAllOwners() JobFilterFunc {
	return func(f *JobFilter) {
		f.All = true
	}
}

func WithLimit(limit int) JobFilterFunc {
	return func(f *JobFilter) {
		f.Limit = limit
	}
}

func (s *JobService) SubmitJob(ctx context.Context, payload string, user *auth.User) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("submit_job").WithString("owner", user.Username).Build()

	if s.validator != nil {
		if err := s.validator.Validate(payload); err != nil {
			metrics.IncreaseJobsRejectedMetric("invalid_payload")
			return nil, NewErrInvalidPayload(err)
		}
	}

	if s.limiter != nil && !s.limiter.Allow(user.Organization+"/"+user.Username) {
		metrics.IncreaseJobsRejectedMetric("rate_limited")
		tracer.Step("rate_limited").Log()
		return nil, NewErrRateLimited(user.Username)
	}

	job, err := s.store.Job().Create(ctx, model.Job{
		Owner:        user.Username,
		Organization: user.Organization,
		Payload:      payload,
	})
	if err != nil {
		if errors.Is(err, store.ErrResourceExhausted) {
			metrics.IncreaseJobsRejectedMetric("capacity")
			tracer.Step("capacity_exhausted").Log()
			return nil, NewErrCapacityExhausted()
		}
		tracer.Error(err).Log()
		return nil, err
	}

	metrics.IncreaseJobsSubmittedMetric()
	s.emit(ctx, events.JobSubmittedKind, job, "")
	if s.dispatcher != nil {
		s.dispatcher.Notify()
	}

	tracer.Success().WithUUID("job_id", job.ID).Log()
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID, user *auth.User) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("get_job").WithUUID("job_id", id).Build()

	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		tracer.Error(err).Log()
		return nil, err
	}

	if err := s.checkAccess(job, user); err != nil {
		return nil, err
	}

	tracer.Success().Log()
	return job, nil
}

func (s *JobService) ListJobs(ctx context.Context, filter *JobFilter, user *auth.User) (model.JobList, error) {
	tracer := s.logger.WithContext(ctx).Operation("list_jobs").WithParam("filter", filter).Build()

	storeFilter := store.NewJobQueryFilter().ByState(filter.States...)
	if filter.All {
		if !user.Admin {
			return nil, NewErrListAllForbidden()
		}
	} else {
		storeFilter = storeFilter.ByOwner(user.Username, user.Organization)
	}

	jobs, err := s.store.Job().List(ctx, storeFilter, store.NewJobQueryOptions().WithLimit(filter.Limit))
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().WithInt("count", len(jobs)).Log()
	return jobs, nil
}

// CancelJob cancels a pending or running job. A running job is marked
// cancelled first, then its execution is interrupted.
func (s *JobService) CancelJob(ctx context.Context, id uuid.UUID, user *auth.User) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("cancel_job").WithUUID("job_id", id).Build()

	job, err := s.GetJob(ctx, id, user)
	if err != nil {
		return nil, err
	}

	if job.State.IsTerminal() {
		return nil, NewErrJobAlreadyCompleted(id, string(job.State))
	}

	cancelled, err := s.store.Job().Cancel(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			return nil, NewErrJobNotFound(id)
		case errors.Is(err, store.ErrConflict):
			// finished between the read and the cancel
			if latest, gerr := s.store.Job().Get(ctx, id); gerr == nil && latest.State.IsTerminal() {
				return nil, NewErrJobAlreadyCompleted(id, string(latest.State))
			}
			return nil, NewErrJobConflict(id, err)
		default:
			tracer.Error(err).Log()
			return nil, err
		}
	}

	interrupted := false
	if s.dispatcher != nil {
		interrupted = s.dispatcher.Cancel(id)
	}

	metrics.IncreaseJobTransitionMetric(string(job.State), string(model.JobStateCancelled))
	s.emit(ctx, events.JobCancelledKind, cancelled, job.State)

	tracer.Success().WithBool("interrupted", interrupted).Log()
	return cancelled, nil
}

// DispatcherStatus reports the pool occupancy. Only administrators see which
// jobs hold the slots.
func (s *JobService) DispatcherStatus(ctx context.Context, user *auth.User) (*dispatcher.Status, error) {
	if s.dispatcher == nil {
		return nil, NewErrDispatcherUnavailable()
	}

	status := s.dispatcher.Status()
	if !user.Admin {
		status.Jobs = nil
	}

	s.logger.WithContext(ctx).Operation("dispatcher_status").Build().
		Success().WithInt("running", status.Running).Log()
	return &status, nil
}

func (s *JobService) checkAccess(job *model.Job, user *auth.User) error {
	if user.Admin || job.IsOwnedBy(user.Username, user.Organization) {
		return nil
	}
	return NewErrJobAccessForbidden(job.ID)
}

func (s *JobService) emit(ctx context.Context, kind string, job *model.Job, from model.JobState) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, kind, events.JobEvent{
		JobID:         job.ID.String(),
		Owner:         job.Owner,
		Organization:  job.Organization,
		State:         string(job.State),
		PreviousState: string(from),
		Result:        job.Result,
		Timestamp:     job.UpdatedAt,
	}); err != nil {
		s.logger.WithContext(ctx).Operation("emit_event").WithString("kind", kind).Build().Error(err).Log()
	}
}
