package store

import (
	"gorm.io/gorm"
)

// Store is the job registry and the user directory behind the gateway.
// Two backends exist: the SQL one built by NewStore and the in-memory one
// built by NewMemoryStore. Both honour the same job state machine.
type Store interface {
	Job() Job
	User() User
	Close() error
}

type Option func(o *options)

type options struct {
	maxActiveJobs int
}

// WithMaxActiveJobs bounds the number of pending and running jobs.
// Create fails with ErrResourceExhausted once the bound is reached. Zero disables it.
func WithMaxActiveJobs(n int) Option {
	return func(o *options) {
		o.maxActiveJobs = n
	}
}

func newOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type DataStore struct {
	db   *gorm.DB
	job  Job
	user User
}

func NewStore(db *gorm.DB, opts ...Option) Store {
	o := newOptions(opts)
	return &DataStore{
		db:   db,
		job:  NewJobStore(db, o.maxActiveJobs),
		user: NewUserStore(db),
	}
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) User() User {
	return s.user
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type MemoryStore struct {
	job  *memoryJobStore
	user *memoryUserStore
}

func NewMemoryStore(opts ...Option) Store {
	o := newOptions(opts)
	return &MemoryStore{
		job:  newMemoryJobStore(o.maxActiveJobs),
		user: newMemoryUserStore(),
	}
}

func (s *MemoryStore) Job() Job {
	return s.job
}

func (s *MemoryStore) User() User {
	return s.user
}

func (s *MemoryStore) Close() error {
	return nil
}
