package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/mist-hpc/mist/internal/store/model"
	"gorm.io/gorm"
)

// BaseQuerier carries a query both as gorm scopes, for the SQL backend, and as
// predicates, for the in-memory backend. Every builder method appends to both.
type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
	MatchFn []func(j model.Job) bool
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{
		QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0),
		MatchFn: make([]func(j model.Job) bool, 0),
	}
}

func (f *JobQueryFilter) ByOwner(username, organization string) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner = ? AND organization = ?", username, organization)
	})
	f.MatchFn = append(f.MatchFn, func(j model.Job) bool {
		return j.IsOwnedBy(username, organization)
	})
	return f
}

func (f *JobQueryFilter) ByState(states ...model.JobState) *JobQueryFilter {
	if len(states) == 0 {
		return f
	}
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("state IN ?", states)
	})
	f.MatchFn = append(f.MatchFn, func(j model.Job) bool {
		for _, s := range states {
			if j.State == s {
				return true
			}
		}
		return false
	})
	return f
}

func (f *JobQueryFilter) ByID(ids ...uuid.UUID) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	f.MatchFn = append(f.MatchFn, func(j model.Job) bool {
		for _, id := range ids {
			if j.ID == id {
				return true
			}
		}
		return false
	})
	return f
}

func (f *JobQueryFilter) UpdatedBefore(t time.Time) *JobQueryFilter {
	t = t.UTC()
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("updated_at < ?", t)
	})
	f.MatchFn = append(f.MatchFn, func(j model.Job) bool {
		return j.UpdatedAt.Before(t)
	})
	return f
}

// Matches reports whether j satisfies every predicate of the filter. A nil filter matches everything.
func (f *JobQueryFilter) Matches(j model.Job) bool {
	if f == nil {
		return true
	}
	for _, fn := range f.MatchFn {
		if !fn(j) {
			return false
		}
	}
	return true
}

func (f *JobQueryFilter) apply(tx *gorm.DB) *gorm.DB {
	if f == nil {
		return tx
	}
	for _, fn := range f.QueryFn {
		tx = fn(tx)
	}
	return tx
}

type JobQueryOptions struct {
	limit int
}

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{}
}

// WithLimit caps the number of returned jobs. Values below one mean no limit.
func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.limit = limit
	return o
}

func (o *JobQueryOptions) Limit() int {
	if o == nil {
		return 0
	}
	return o.limit
}
