package migrations_test

import (
	"path/filepath"

	"github.com/mist-hpc/mist/internal/config"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var gormdb *gorm.DB

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Type = store.TypeSqlite
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "migrations.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db
	})

	AfterAll(func() {
		sqlDB, err := gormdb.DB()
		Expect(err).To(BeNil())
		Expect(sqlDB.Close()).To(Succeed())
	})

	tableExists := func(name string) bool {
		var count int64
		tx := gormdb.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
		Expect(tx.Error).To(BeNil())
		return count == 1
	}

	It("fails on a database type without migrations", func() {
		err := migrations.MigrateStore(gormdb, "memory")
		Expect(err).NotTo(BeNil())
	})

	It("successfully migrates the db", func() {
		Expect(migrations.MigrateStore(gormdb, store.TypeSqlite)).To(Succeed())
		Expect(tableExists("jobs")).To(BeTrue())
		Expect(tableExists("users")).To(BeTrue())
	})

	It("is idempotent", func() {
		Expect(migrations.MigrateStore(gormdb, store.TypeSqlite)).To(Succeed())
	})
})
