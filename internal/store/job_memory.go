package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mist-hpc/mist/internal/store/model"
)

// memoryJobStore keeps jobs in process memory. A single lock guards the map
// and the creation order index, so every operation is linearizable.
type memoryJobStore struct {
	mu            sync.RWMutex
	jobs          map[uuid.UUID]*model.Job
	order         []uuid.UUID
	active        int
	maxActiveJobs int
}

var _ Job = (*memoryJobStore)(nil)

func newMemoryJobStore(maxActiveJobs int) *memoryJobStore {
	return &memoryJobStore{
		jobs:          make(map[uuid.UUID]*model.Job),
		order:         make([]uuid.UUID, 0),
		maxActiveJobs: maxActiveJobs,
	}
}

func (s *memoryJobStore) Create(_ context.Context, job model.Job) (*model.Job, error) {
	newJob, err := newPendingJob(job)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxActiveJobs > 0 && s.active >= s.maxActiveJobs {
		return nil, ErrResourceExhausted
	}
	if _, found := s.jobs[newJob.ID]; found {
		return nil, ErrDuplicateKey
	}

	s.jobs[newJob.ID] = newJob
	s.order = append(s.order, newJob.ID)
	s.active++

	return copyJob(newJob), nil
}

func (s *memoryJobStore) Get(_ context.Context, id uuid.UUID) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, found := s.jobs[id]
	if !found {
		return nil, ErrRecordNotFound
	}
	return copyJob(job), nil
}

func (s *memoryJobStore) List(_ context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit()
	jobs := make(model.JobList, 0)
	for _, id := range s.order {
		job := s.jobs[id]
		if !filter.Matches(*job) {
			continue
		}
		jobs = append(jobs, *copyJob(job))
		if limit > 0 && len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

func (s *memoryJobStore) Transition(_ context.Context, id uuid.UUID, from, to model.JobState, result *string) (*model.Job, error) {
	if err := validateTransition(from, to, result); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, found := s.jobs[id]
	if !found {
		return nil, ErrRecordNotFound
	}
	if job.State != from {
		return nil, newConflict(id, job.State, from)
	}

	job.State = to
	if to.CarriesResult() {
		r := *result
		job.Result = &r
	}
	job.UpdatedAt = nextTimestamp(job.UpdatedAt)
	if to.IsTerminal() {
		s.active--
	}

	return copyJob(job), nil
}

func (s *memoryJobStore) Cancel(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return cancelJob(ctx, s, id)
}

func (s *memoryJobStore) CountByState(_ context.Context) (map[model.JobState]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.JobState]int64)
	for _, job := range s.jobs {
		counts[job.State]++
	}
	return counts, nil
}

func (s *memoryJobStore) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.State.IsTerminal() && job.UpdatedAt.Before(before) {
			delete(s.jobs, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	return deleted, nil
}

func copyJob(j *model.Job) *model.Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
