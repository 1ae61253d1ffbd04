package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txKey struct{}

// transaction is a gorm transaction carried in a context so every store call
// made with that context joins it.
type transaction struct {
	db *gorm.DB
}

// txFromContext returns the transaction started by withTransaction, if any.
func txFromContext(ctx context.Context) *gorm.DB {
	if t, found := ctx.Value(txKey{}).(*transaction); found && t != nil {
		return t.db
	}
	return nil
}

// withTransaction runs fn with a context carrying a transaction. A context
// already carrying one is reused and left to its owner to commit.
//
// fn must reach the database only through that context: sqlite runs on a
// single connection and a plain query issued beside an open transaction waits
// for it forever.
func withTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return fmt.Errorf("starting transaction: %w", tx.Error)
	}

	if err := fn(context.WithValue(ctx, txKey{}, &transaction{db: tx})); err != nil {
		if rerr := tx.Rollback().Error; rerr != nil {
			zap.S().Named("store").Errorf("failed to rollback transaction: %s", rerr)
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		zap.S().Named("store").Errorf("failed to commit transaction: %s", err)
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
