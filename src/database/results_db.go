package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"cropbot/src/datamodels"
)

// Postgres NOTIFY channel for completed signals, consumed by the read
// surface's websocket push.
const SignalChannel = "signal_written"

// ResultStore persists the terminal pipeline artifacts. Everything here is
// an upsert keyed by as-of date so re-running a date replaces rather than
// appends.
type ResultStore interface {
	ReplaceEnsembleForecasts(ctx context.Context, date time.Time, forecasts []datamodels.EnsembleForecast) error
	GetEnsembleForecasts(ctx context.Context, date time.Time) ([]datamodels.EnsembleForecast, error)
	UpsertSignal(ctx context.Context, signal datamodels.Signal) error
	GetSignal(ctx context.Context, date time.Time) (*datamodels.Signal, error)
	WriteExplanation(ctx context.Context, explanation datamodels.Explanation) error
	GetExplanations(ctx context.Context, date time.Time) ([]datamodels.Explanation, error)
}

func (d *databaseImplementation) ReplaceEnsembleForecasts(ctx context.Context, date time.Time, forecasts []datamodels.EnsembleForecast) error {
	tx := d.gormDb.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	// horizons that produced no forecast this run must not survive from a
	// previous run of the same date
	if err := tx.Where("as_of_date = ?", date).Delete(&datamodels.EnsembleForecast{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if len(forecasts) > 0 {
		for i := range forecasts {
			forecasts[i].AsOfDate = date
		}
		if err := tx.Create(&forecasts).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

func (d *databaseImplementation) GetEnsembleForecasts(ctx context.Context, date time.Time) ([]datamodels.EnsembleForecast, error) {
	var forecasts []datamodels.EnsembleForecast
	err := d.gormDb.WithContext(ctx).
		Where("as_of_date = ?", date).
		Order("horizon_days ASC").
		Find(&forecasts).Error
	return forecasts, err
}

func (d *databaseImplementation) UpsertSignal(ctx context.Context, signal datamodels.Signal) error {
	err := d.gormDb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "as_of_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"action", "confidence", "dollar_impact", "rationale", "updated_at"}),
	}).Create(&signal).Error
	if err != nil {
		return err
	}
	notifyErr := Notify(d.gormDb, SignalChannel, signal.AsOfDate.Format("2006-01-02"), string(signal.Action))
	if notifyErr != nil {
		// the signal row is committed; a lost notification only delays the
		// live view until its next poll
		return nil
	}
	return nil
}

func (d *databaseImplementation) GetSignal(ctx context.Context, date time.Time) (*datamodels.Signal, error) {
	var signals []datamodels.Signal
	err := d.gormDb.WithContext(ctx).
		Where("as_of_date = ?", date).
		Limit(1).
		Find(&signals).Error
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, nil
	}
	return &signals[0], nil
}

func (d *databaseImplementation) WriteExplanation(ctx context.Context, explanation datamodels.Explanation) error {
	return d.gormDb.WithContext(ctx).Create(&explanation).Error
}

func (d *databaseImplementation) GetExplanations(ctx context.Context, date time.Time) ([]datamodels.Explanation, error) {
	var explanations []datamodels.Explanation
	err := d.gormDb.WithContext(ctx).
		Where("as_of_date = ?", date).
		Order("id ASC").
		Find(&explanations).Error
	return explanations, err
}
