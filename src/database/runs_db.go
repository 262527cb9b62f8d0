package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

// RunStore persists model run provenance and the forecast points each run
// produces. Completion is idempotent: repeating a terminal status is a no-op,
// switching to a different terminal status is an invariant violation.
type RunStore interface {
	InsertModelRun(ctx context.Context, run datamodels.ModelRun) error
	UpdateRunParameters(ctx context.Context, runId string, parameters []byte) error
	CompleteModelRun(ctx context.Context, runId string, status datamodels.RunStatus, reason string, finishedAt time.Time) error
	GetModelRun(ctx context.Context, runId string) (*datamodels.ModelRun, error)
	GetModelRunsByDate(ctx context.Context, date time.Time) ([]datamodels.ModelRun, error)
	WriteForecastPoints(ctx context.Context, points []datamodels.ForecastPoint) error
	GetForecastPoints(ctx context.Context, runId string) ([]datamodels.ForecastPoint, error)
}

func (d *databaseImplementation) InsertModelRun(ctx context.Context, run datamodels.ModelRun) error {
	return d.gormDb.WithContext(ctx).Create(&run).Error
}

// UpdateRunParameters replaces the recorded parameters of a still-running
// run, used when the definitive fit parameters are only known after the work.
func (d *databaseImplementation) UpdateRunParameters(ctx context.Context, runId string, parameters []byte) error {
	result := d.gormDb.WithContext(ctx).
		Model(&datamodels.ModelRun{}).
		Where("run_id = ? AND status = ?", runId, datamodels.RunStatusRunning).
		Update("parameters", parameters)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(errors.ErrInvariantViolation, "no running run with id %s", runId)
	}
	return nil
}

func (d *databaseImplementation) CompleteModelRun(ctx context.Context, runId string, status datamodels.RunStatus, reason string, finishedAt time.Time) error {
	existing, err := d.GetModelRun(ctx, runId)
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.Wrapf(errors.ErrInvariantViolation, "no model run with id %s", runId)
	}
	if existing.Status != datamodels.RunStatusRunning {
		if existing.Status == status {
			return nil // repeated completion with the same status is a no-op
		}
		return errors.Wrapf(errors.ErrInvariantViolation,
			"run %s already terminal with status %s, refusing %s", runId, existing.Status, status)
	}
	return d.gormDb.WithContext(ctx).
		Model(&datamodels.ModelRun{}).
		Where("run_id = ? AND status = ?", runId, datamodels.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":      status,
			"reason":      reason,
			"finished_at": finishedAt,
		}).Error
}

func (d *databaseImplementation) GetModelRun(ctx context.Context, runId string) (*datamodels.ModelRun, error) {
	var runs []datamodels.ModelRun
	err := d.gormDb.WithContext(ctx).
		Where("run_id = ?", runId).
		Limit(1).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (d *databaseImplementation) GetModelRunsByDate(ctx context.Context, date time.Time) ([]datamodels.ModelRun, error) {
	var runs []datamodels.ModelRun
	dayStart := date
	dayEnd := date.Add(24 * time.Hour)
	err := d.gormDb.WithContext(ctx).
		Where("started_at >= ? AND started_at < ?", dayStart, dayEnd).
		Order("started_at ASC").
		Find(&runs).Error
	return runs, err
}

func (d *databaseImplementation) WriteForecastPoints(ctx context.Context, points []datamodels.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}
	return d.gormDb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}, {Name: "target_date"}, {Name: "horizon_days"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"point_estimate", "lower_bound", "upper_bound", "model_version", "updated_at"}),
	}).Create(&points).Error
}

func (d *databaseImplementation) GetForecastPoints(ctx context.Context, runId string) ([]datamodels.ForecastPoint, error) {
	var points []datamodels.ForecastPoint
	err := d.gormDb.WithContext(ctx).
		Where("run_id = ?", runId).
		Order("horizon_days ASC").
		Find(&points).Error
	return points, err
}
