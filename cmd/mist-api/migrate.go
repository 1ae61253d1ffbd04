package main

import (
	"fmt"

	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer teardown()

		if cfg.Database.Type == store.TypeMemory {
			zap.S().Info("memory registry selected, nothing to migrate")
			return nil
		}

		zap.S().Info("initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg.Database.Type); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		zap.S().Info("db migrated")
		return nil
	},
}
