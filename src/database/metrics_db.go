package database

import (
	"context"

	"cropbot/src/datamodels"
)

type MetricsDatabase interface {
	CreateNewMetricGenerator(ctx context.Context, metricGenerator datamodels.MetricGenerator) (int64, error)
	WriteNewMetric(ctx context.Context, metric datamodels.Metric) (int64, error)
}

func (d *databaseImplementation) CreateNewMetricGenerator(ctx context.Context, metricGenerator datamodels.MetricGenerator) (int64, error) {
	return d.gormDb.WithContext(ctx).Create(&metricGenerator).RowsAffected, d.gormDb.Error
}

func (d *databaseImplementation) WriteNewMetric(ctx context.Context, metric datamodels.Metric) (int64, error) {
	return d.gormDb.WithContext(ctx).Create(&metric).RowsAffected, d.gormDb.Error
}
