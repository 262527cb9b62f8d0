package metrics

import (
	"context"

	"cropbot/src/database"
	"cropbot/src/datamodels"
)

type DBMetricsWriter struct {
	db database.MetricsDatabase
}

func NewDBMetricsWriter(db database.CropbotDatabase) (*DBMetricsWriter, error) {
	return &DBMetricsWriter{
		db: db,
	}, nil
}

func (w *DBMetricsWriter) Write(ctx context.Context, metric datamodels.Metric) error {
	_, err := w.db.WriteNewMetric(ctx, metric)
	return err
}

func (w *DBMetricsWriter) Close() error {
	return nil
}
