package database

import (
	"context"
	"time"

	"cropbot/src/datamodels"
)

// FeatureStore writes and reads the engineered feature vectors. Writes for a
// single date are all-or-nothing: either every vector for that date lands or
// none do.
type FeatureStore interface {
	ReplaceFeatureVectors(ctx context.Context, date time.Time, vectors []datamodels.FeatureVector) error
	GetFeatureVectors(ctx context.Context, date time.Time) ([]datamodels.FeatureVector, error)
	GetFeatureHistory(ctx context.Context, entity string, featureName string, asOfDate time.Time, limit int) ([]datamodels.FeatureVector, error)
}

func (d *databaseImplementation) ReplaceFeatureVectors(ctx context.Context, date time.Time, vectors []datamodels.FeatureVector) error {
	tx := d.gormDb.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	// features that went missing upstream must not survive from a previous
	// run of the same date
	if err := tx.Where("date = ?", date).Delete(&datamodels.FeatureVector{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if len(vectors) > 0 {
		for i := range vectors {
			vectors[i].Date = date
		}
		if err := tx.Create(&vectors).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

func (d *databaseImplementation) GetFeatureVectors(ctx context.Context, date time.Time) ([]datamodels.FeatureVector, error) {
	var vectors []datamodels.FeatureVector
	err := d.gormDb.WithContext(ctx).
		Where("date = ?", date).
		Order("entity, feature_name").
		Find(&vectors).Error
	return vectors, err
}

func (d *databaseImplementation) GetFeatureHistory(ctx context.Context, entity string, featureName string, asOfDate time.Time, limit int) ([]datamodels.FeatureVector, error) {
	var vectors []datamodels.FeatureVector
	err := d.gormDb.WithContext(ctx).
		Where("entity = ? AND feature_name = ? AND date <= ?", entity, featureName, asOfDate).
		Order("date DESC").
		Limit(limit).
		Find(&vectors).Error
	return vectors, err
}
