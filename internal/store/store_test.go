package store_test

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/mist-hpc/mist/internal/config"
	st "github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	"github.com/mist-hpc/mist/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func newSqliteStore(opts ...st.Option) (st.Store, *gorm.DB) {
	cfg := config.NewDefault()
	cfg.Database.Type = st.TypeSqlite
	cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "registry.db")

	db, err := st.InitDB(cfg)
	Expect(err).To(BeNil())
	Expect(migrations.MigrateStore(db, cfg.Database.Type)).To(Succeed())

	return st.NewStore(db, opts...), db
}

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		store, gormDB = newSqliteStore(st.WithMaxActiveJobs(5))
		Expect(store).ToNot(BeNil())
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM jobs;")
	})

	Context("bounded creation", func() {
		It("admits exactly the capacity under concurrent submits", func() {
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				created   int
				exhausted int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := store.Job().Create(context.TODO(), model.Job{Owner: "admin", Organization: "org", Payload: "echo:hi"})

					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						created++
						return
					}
					Expect(err).To(MatchError(st.ErrResourceExhausted))
					exhausted++
				}()
			}
			wg.Wait()

			Expect(created).To(Equal(5))
			Expect(exhausted).To(Equal(15))

			count := 0
			err := gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(5))
		})

		It("frees capacity once a job is finished", func() {
			var first *model.Job
			for i := 0; i < 5; i++ {
				job, err := store.Job().Create(context.TODO(), model.Job{Owner: "admin", Organization: "org", Payload: "echo:hi"})
				Expect(err).To(BeNil())
				if first == nil {
					first = job
				}
			}

			_, err := store.Job().Create(context.TODO(), model.Job{Owner: "admin", Organization: "org", Payload: "echo:hi"})
			Expect(err).To(MatchError(st.ErrResourceExhausted))

			_, err = store.Job().Cancel(context.TODO(), first.ID)
			Expect(err).To(BeNil())

			_, err = store.Job().Create(context.TODO(), model.Job{Owner: "admin", Organization: "org", Payload: "echo:hi"})
			Expect(err).To(BeNil())
		})
	})
})
