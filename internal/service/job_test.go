package service_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/config"
	"github.com/mist-hpc/mist/internal/dispatcher"
	"github.com/mist-hpc/mist/internal/service"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	notified  int
	cancelled []uuid.UUID
	running   map[uuid.UUID]bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{running: map[uuid.UUID]bool{}}
}

func (f *fakeDispatcher) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified++
}

func (f *fakeDispatcher) Cancel(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return f.running[id]
}

func (f *fakeDispatcher) Status() dispatcher.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := dispatcher.Status{PoolSize: 4}
	for id, running := range f.running {
		if running {
			status.Jobs = append(status.Jobs, id)
		}
	}
	status.Running = len(status.Jobs)
	status.Free = status.PoolSize - status.Running
	return status
}

// claimingJobs is a registry where a dispatcher claims every job right before
// a cancel reaches it.
type claimingJobs struct {
	store.Job
}

func (c *claimingJobs) Cancel(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	if _, err := c.Job.Transition(ctx, id, model.JobStatePending, model.JobStateRunning, nil); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: job %s is running, expected pending", store.ErrConflict, id)
}

type claimingStore struct {
	store.Store
}

func (c *claimingStore) Job() store.Job {
	return &claimingJobs{Job: c.Store.Job()}
}

type fakeEmitter struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeEmitter) Emit(_ context.Context, kind string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return nil
}

var _ = Describe("job service", func() {
	var (
		s       store.Store
		d       *fakeDispatcher
		emitter *fakeEmitter
		srv     *service.JobService
		batman  = &auth.User{Username: "batman", Organization: "gotham"}
		joker   = &auth.User{Username: "joker", Organization: "gotham"}
		admin   = &auth.User{Username: "alfred", Organization: "wayne", Admin: true}
	)

	BeforeEach(func() {
		s = store.NewMemoryStore(store.WithMaxActiveJobs(3))
		d = newFakeDispatcher()
		emitter = &fakeEmitter{}
		srv = service.NewJobService(s, d,
			service.WithPayloadValidator(dispatcher.NewBuiltinMux()),
			service.WithEvents(emitter))
	})

	Context("submit", func() {
		It("creates a pending job owned by the caller and wakes the dispatcher", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(model.JobStatePending))
			Expect(job.Owner).To(Equal("batman"))
			Expect(job.Organization).To(Equal("gotham"))
			Expect(d.notified).To(Equal(1))
			Expect(emitter.kinds).To(Equal([]string{"mist.jobs.submitted"}))
		})

		It("rejects an unknown kind", func() {
			_, err := srv.SubmitJob(context.TODO(), "compile:main.go", batman)
			Expect(err).NotTo(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidPayload{})))

			jobs, err := s.Job().List(context.TODO(), nil, nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(BeEmpty())
		})

		It("reports exhausted capacity", func() {
			for i := 0; i < 3; i++ {
				_, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
				Expect(err).To(BeNil())
			}
			_, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			var exhausted *service.ErrResourceExhausted
			Expect(errors.As(err, &exhausted)).To(BeTrue())
		})

		It("limits the submission rate per owner", func() {
			srv = service.NewJobService(store.NewMemoryStore(), d,
				service.WithSubmitRateLimit(config.RateLimit{SubmitPerSecond: 0.001, Burst: 2}))

			for i := 0; i < 2; i++ {
				_, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
				Expect(err).To(BeNil())
			}
			_, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			var exhausted *service.ErrResourceExhausted
			Expect(errors.As(err, &exhausted)).To(BeTrue())

			// other owners have their own bucket
			_, err = srv.SubmitJob(context.TODO(), "echo:hi", joker)
			Expect(err).To(BeNil())
		})
	})

	Context("get", func() {
		It("returns the caller's job", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			got, err := srv.GetJob(context.TODO(), job.ID, batman)
			Expect(err).To(BeNil())
			Expect(got.ID).To(Equal(job.ID))
		})

		It("refuses a foreign job", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			_, err = srv.GetJob(context.TODO(), job.ID, joker)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobAccessForbidden{})))
		})

		It("refuses a job of the same user name in another organization", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			_, err = srv.GetJob(context.TODO(), job.ID, &auth.User{Username: "batman", Organization: "metropolis"})
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobAccessForbidden{})))
		})

		It("lets an administrator read any job", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			_, err = srv.GetJob(context.TODO(), job.ID, admin)
			Expect(err).To(BeNil())
		})

		It("reports a missing job", func() {
			_, err := srv.GetJob(context.TODO(), uuid.New(), batman)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
		})
	})

	Context("list", func() {
		BeforeEach(func() {
			for _, u := range []*auth.User{batman, joker, batman} {
				_, err := srv.SubmitJob(context.TODO(), "echo:"+u.Username, u)
				Expect(err).To(BeNil())
			}
		})

		It("scopes the list to the caller", func() {
			jobs, err := srv.ListJobs(context.TODO(), service.NewJobFilter(), batman)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			for _, j := range jobs {
				Expect(j.Owner).To(Equal("batman"))
			}
		})

		It("filters by state", func() {
			jobs, err := srv.ListJobs(context.TODO(), service.NewJobFilter(), batman)
			Expect(err).To(BeNil())
			_, err = srv.CancelJob(context.TODO(), jobs[0].ID, batman)
			Expect(err).To(BeNil())

			cancelled, err := srv.ListJobs(context.TODO(), service.NewJobFilter(service.WithStates(model.JobStateCancelled)), batman)
			Expect(err).To(BeNil())
			Expect(cancelled).To(HaveLen(1))
			Expect(cancelled[0].ID).To(Equal(jobs[0].ID))
		})

		It("lists every owner for administrators only", func() {
			jobs, err := srv.ListJobs(context.TODO(), service.NewJobFilter(service.WithAllOwners()), admin)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))

			_, err = srv.ListJobs(context.TODO(), service.NewJobFilter(service.WithAllOwners()), batman)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobAccessForbidden{})))
		})

		It("honours the limit", func() {
			jobs, err := srv.ListJobs(context.TODO(), service.NewJobFilter(service.WithAllOwners(), service.WithLimit(2)), admin)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})
	})

	Context("cancel", func() {
		It("cancels a pending job", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			cancelled, err := srv.CancelJob(context.TODO(), job.ID, batman)
			Expect(err).To(BeNil())
			Expect(cancelled.State).To(Equal(model.JobStateCancelled))
			Expect(d.cancelled).To(ContainElement(job.ID))
			Expect(emitter.kinds).To(ContainElement("mist.jobs.cancelled"))
		})

		It("cancels a running job and interrupts it", func() {
			job, err := srv.SubmitJob(context.TODO(), "sleep:1h", batman)
			Expect(err).To(BeNil())
			_, err = s.Job().Transition(context.TODO(), job.ID, model.JobStatePending, model.JobStateRunning, nil)
			Expect(err).To(BeNil())
			d.running[job.ID] = true

			cancelled, err := srv.CancelJob(context.TODO(), job.ID, batman)
			Expect(err).To(BeNil())
			Expect(cancelled.State).To(Equal(model.JobStateCancelled))
			Expect(d.cancelled).To(Equal([]uuid.UUID{job.ID}))
		})

		It("refuses to cancel a finished job", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())
			result := "hi"
			_, err = s.Job().Transition(context.TODO(), job.ID, model.JobStatePending, model.JobStateRunning, nil)
			Expect(err).To(BeNil())
			_, err = s.Job().Transition(context.TODO(), job.ID, model.JobStateRunning, model.JobStateSucceeded, &result)
			Expect(err).To(BeNil())

			_, err = srv.CancelJob(context.TODO(), job.ID, batman)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobAlreadyCompleted{})))
		})

		It("refuses to cancel a foreign job", func() {
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			_, err = srv.CancelJob(context.TODO(), job.ID, joker)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobAccessForbidden{})))

			got, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.State).To(Equal(model.JobStatePending))
		})

		It("reports a missing job", func() {
			_, err := srv.CancelJob(context.TODO(), uuid.New(), batman)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
		})

		It("reports a conflict when the job is claimed during the cancel", func() {
			srv = service.NewJobService(&claimingStore{Store: s}, d, service.WithEvents(emitter))
			job, err := srv.SubmitJob(context.TODO(), "echo:hi", batman)
			Expect(err).To(BeNil())

			_, err = srv.CancelJob(context.TODO(), job.ID, batman)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobConflict{})))
			Expect(d.cancelled).To(BeEmpty())
			Expect(emitter.kinds).NotTo(ContainElement("mist.jobs.cancelled"))

			got, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.State).To(Equal(model.JobStateRunning))
		})
	})

	Context("dispatcher status", func() {
		It("shows the running jobs to administrators", func() {
			id := uuid.New()
			d.running[id] = true

			status, err := srv.DispatcherStatus(context.TODO(), admin)
			Expect(err).To(BeNil())
			Expect(status.PoolSize).To(Equal(4))
			Expect(status.Running).To(Equal(1))
			Expect(status.Free).To(Equal(3))
			Expect(status.Jobs).To(Equal([]uuid.UUID{id}))
		})

		It("shows only the occupancy to other users", func() {
			d.running[uuid.New()] = true

			status, err := srv.DispatcherStatus(context.TODO(), batman)
			Expect(err).To(BeNil())
			Expect(status.Running).To(Equal(1))
			Expect(status.Jobs).To(BeNil())
		})

		It("reports a gateway without dispatcher", func() {
			srv = service.NewJobService(s, nil)

			_, err := srv.DispatcherStatus(context.TODO(), admin)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrDispatcherUnavailable{})))
		})
	})
})
