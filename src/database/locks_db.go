package database

import (
	"context"
	"hash/fnv"
	"time"

	"gorm.io/gorm"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

// LockStore serializes pipeline runs per (symbol, date) with a postgres
// advisory lock. Contention surfaces as ErrStoreConflict so callers can
// retry with backoff.
type LockStore interface {
	WithRunLock(ctx context.Context, symbol datamodels.Symbol, date time.Time, fn func() error) error
}

func runLockKey(symbol datamodels.Symbol, date time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(string(symbol)))
	h.Write([]byte(date.Format("2006-01-02")))
	return int64(h.Sum64())
}

func (d *databaseImplementation) WithRunLock(ctx context.Context, symbol datamodels.Symbol, date time.Time, fn func() error) error {
	key := runLockKey(symbol, date)

	// lock and unlock must happen on the same pooled connection
	return d.gormDb.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var locked bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&locked).Error; err != nil {
			return errors.Wrapf(err, "failed to acquire run lock for %s on %s", symbol, date.Format("2006-01-02"))
		}
		if !locked {
			return errors.Wrapf(errors.ErrStoreConflict,
				"run already in progress for %s on %s", symbol, date.Format("2006-01-02"))
		}
		defer func() {
			var unlocked bool
			conn.Raw("SELECT pg_advisory_unlock(?)", key).Scan(&unlocked)
		}()
		return fn()
	})
}
