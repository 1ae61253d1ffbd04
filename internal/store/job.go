package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mist-hpc/mist/internal/store/model"
	"gorm.io/gorm"
)

// Job is the job registry. Transition is the only way a job changes state:
// it is a compare-and-swap on the current state and fails with ErrConflict
// when the job is no longer in the expected state.
type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Transition(ctx context.Context, id uuid.UUID, from, to model.JobState, result *string) (*model.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Job, error)
	CountByState(ctx context.Context) (map[model.JobState]int64, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// activeJobsLockKey names the postgres advisory lock serializing the
// capacity check and the insert across every gateway sharing the database.
const activeJobsLockKey int64 = 0x6d697374

type JobStore struct {
	db            *gorm.DB
	maxActiveJobs int
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB, maxActiveJobs int) *JobStore {
	return &JobStore{db: db, maxActiveJobs: maxActiveJobs}
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	newJob, err := newPendingJob(job)
	if err != nil {
		return nil, err
	}

	if s.maxActiveJobs <= 0 {
		if err := s.insert(ctx, newJob); err != nil {
			return nil, err
		}
		return newJob, nil
	}

	err = withTransaction(ctx, s.db, func(ctx context.Context) error {
		if s.db.Dialector.Name() == "postgres" {
			if err := s.getDB(ctx).Exec("SELECT pg_advisory_xact_lock(?)", activeJobsLockKey).Error; err != nil {
				return fmt.Errorf("locking active jobs: %w", err)
			}
		}

		var active int64
		if err := s.getDB(ctx).Model(&model.Job{}).
			Where("state IN ?", []model.JobState{model.JobStatePending, model.JobStateRunning}).
			Count(&active).Error; err != nil {
			return fmt.Errorf("counting active jobs: %w", err)
		}
		if active >= int64(s.maxActiveJobs) {
			return ErrResourceExhausted
		}

		return s.insert(ctx, newJob)
	})
	if err != nil {
		return nil, err
	}
	return newJob, nil
}

func (s *JobStore) insert(ctx context.Context, job *model.Job) error {
	if err := s.getDB(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	if err := s.getDB(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := filter.apply(s.getDB(ctx).Model(&model.Job{})).Order("created_at, id")
	if limit := opts.Limit(); limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) Transition(ctx context.Context, id uuid.UUID, from, to model.JobState, result *string) (*model.Job, error) {
	if err := validateTransition(from, to, result); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State != from {
		return nil, newConflict(id, current.State, from)
	}

	now := nextTimestamp(current.UpdatedAt)
	updates := map[string]any{
		"state":      to,
		"updated_at": now,
	}
	if to.CarriesResult() {
		updates["result"] = *result
	}

	// from != to for every legal edge, so the state column alone guards against
	// a concurrent writer between the read above and this update.
	res := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("updating job state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		latest, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, newConflict(id, latest.State, from)
	}

	// a re-read could observe a later transition; report the one applied here
	updated := *current
	updated.State = to
	updated.UpdatedAt = now
	if to.CarriesResult() {
		r := *result
		updated.Result = &r
	}
	return &updated, nil
}

func (s *JobStore) Cancel(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return cancelJob(ctx, s, id)
}

func (s *JobStore) CountByState(ctx context.Context) (map[model.JobState]int64, error) {
	var rows []struct {
		State model.JobState
		Count int64
	}
	if err := s.getDB(ctx).Model(&model.Job{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	counts := make(map[model.JobState]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

func (s *JobStore) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	filter := NewJobQueryFilter().
		ByState(model.JobStateSucceeded, model.JobStateFailed, model.JobStateCancelled).
		UpdatedBefore(before)

	res := filter.apply(s.getDB(ctx)).Delete(&model.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting finished jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := txFromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// newPendingJob fills in the fields owned by the registry.
func newPendingJob(job model.Job) (*model.Job, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating job id: %w", err)
	}

	now := time.Now().UTC()
	return &model.Job{
		ID:           id,
		Owner:        job.Owner,
		Organization: job.Organization,
		Payload:      job.Payload,
		State:        model.JobStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func validateTransition(from, to model.JobState, result *string) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to.CarriesResult() && result == nil {
		return fmt.Errorf("%w: %s", ErrMissingResult, to)
	}
	return nil
}

func newConflict(id uuid.UUID, actual, expected model.JobState) error {
	return fmt.Errorf("%w: job %s is %s, expected %s", ErrConflict, id, actual, expected)
}

// nextTimestamp keeps updated_at non-decreasing even if the wall clock steps back.
func nextTimestamp(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// cancelJob cancels a pending or running job with a single compare-and-swap
// from the state it reads. A job claimed or finished in between is a conflict
// for the caller to resolve; the registry never retries it.
func cancelJob(ctx context.Context, jobs Job, id uuid.UUID) (*model.Job, error) {
	job, err := jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.State.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is already %s", ErrConflict, id, job.State)
	}

	return jobs.Transition(ctx, id, job.State, model.JobStateCancelled, nil)
}
