package datamodels

import (
	"time"
)

type MetricGeneratorType string

const (
	MetricGeneratorTypeStage    MetricGeneratorType = "stage"
	MetricGeneratorTypePipeline MetricGeneratorType = "pipeline"
)

// Metric is one telemetry record emitted by a pipeline stage, stored as a
// JSON payload so writers stay agnostic to the stage's shape.
type Metric struct {
	BaseModel
	MetricGeneratorId   string              `gorm:"not null;index" json:"metric_generator_id"`
	MetricGeneratorName string              `gorm:"not null;index" json:"metric_generator_name"`
	MetricGeneratorType MetricGeneratorType `gorm:"not null;index" json:"metric_generator_type"`
	MetricTime          time.Time           `gorm:"not null;index" json:"metric_time"`
	MetricName          string              `gorm:"not null;index" json:"metric_name"`
	MetricValue         []byte              `gorm:"not null;type:json" json:"metric_value"`
}

type MetricGenerator struct {
	BaseModel
	MetricGeneratorName string              `gorm:"not null;index"`
	MetricGeneratorType MetricGeneratorType `gorm:"not null;index"`
}

// StageMetrics is the payload serialized into Metric.MetricValue for each
// completed pipeline stage.
type StageMetrics struct {
	Stage       string        `json:"stage"`
	RunId       string        `json:"run_id"`
	AsOfDate    time.Time     `json:"as_of_date"`
	Status      RunStatus     `json:"status"`
	Duration    time.Duration `json:"duration"`
	RowsWritten int           `json:"rows_written"`
}
