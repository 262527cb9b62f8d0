package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cropbot/src/datamodels"
)

// MetricsWriter interface defines methods for writing metrics
type MetricsWriter interface {
	// Write takes any struct and writes it as metrics
	Write(ctx context.Context, metric datamodels.Metric) error
	// Close cleans up any resources
	Close() error
}

// NewStageMetric wraps one stage's telemetry into the generic metric record.
func NewStageMetric(stage datamodels.StageMetrics) datamodels.Metric {
	payload, err := json.Marshal(stage)
	if err != nil {
		slog.Error("Failed to marshal stage metrics", "stage", stage.Stage, "error", err)
		payload = []byte("{}")
	}
	return datamodels.Metric{
		MetricGeneratorId:   stage.RunId,
		MetricGeneratorName: stage.Stage,
		MetricGeneratorType: datamodels.MetricGeneratorTypeStage,
		MetricTime:          time.Now().UTC(),
		MetricName:          "stage_completed",
		MetricValue:         payload,
	}
}
