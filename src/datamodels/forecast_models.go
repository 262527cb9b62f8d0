package datamodels

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Reason codes recorded on failed or degraded runs.
const (
	RunReasonInsufficientData  = "insufficient_data"
	RunReasonNumericDivergence = "numeric_divergence"
	RunReasonTimeout           = "timeout"
)

type ForecasterKind string

const (
	ForecasterKindBaseline ForecasterKind = "baseline"
	ForecasterKindSequence ForecasterKind = "sequence"
)

// Stage model names as recorded in ModelRun rows.
const (
	ModelNameFeatures = "feature_engine"
	ModelNameBaseline = "baseline_arx"
	ModelNameSequence = "sequence_ridge"
	ModelNameEnsemble = "ensemble"
	ModelNameSignal   = "signal_engine"
)

// ModelRun is the provenance record for one invocation of a pipeline stage.
// run_id is generated at start; finished_at and the terminal status are set
// exactly once at completion.
type ModelRun struct {
	BaseModel
	RunId      string     `gorm:"not null;uniqueIndex"`
	ModelName  string     `gorm:"not null;index"`
	Parameters []byte     `gorm:"type:jsonb"`
	Status     RunStatus  `gorm:"not null;index"`
	Reason     string
	StartedAt  time.Time  `gorm:"not null"`
	FinishedAt *time.Time
}

// ForecastPoint is one horizon forecast emitted by a forecaster run.
type ForecastPoint struct {
	BaseModel
	RunId         string    `gorm:"not null;uniqueIndex:idx_forecast_key"`
	TargetDate    time.Time `gorm:"not null;uniqueIndex:idx_forecast_key;type:date"`
	HorizonDays   int       `gorm:"not null;uniqueIndex:idx_forecast_key"`
	PointEstimate float64   `gorm:"not null"`
	LowerBound    float64   `gorm:"not null"`
	UpperBound    float64   `gorm:"not null"`
	ModelVersion  string    `gorm:"not null"`
}

// EnsembleForecast is the reconciled per-horizon forecast. Unique on
// (as_of_date, horizon_days), replaced on re-run.
type EnsembleForecast struct {
	BaseModel
	AsOfDate         time.Time `gorm:"not null;uniqueIndex:idx_ensemble_key;type:date"`
	HorizonDays      int       `gorm:"not null;uniqueIndex:idx_ensemble_key"`
	PointEstimate    float64   `gorm:"not null"`
	LowerBound       float64   `gorm:"not null"`
	UpperBound       float64   `gorm:"not null"`
	Confidence       float64   `gorm:"not null"`
	ContributingRuns string    `gorm:"not null"` // comma-joined run ids
}

type SignalAction string

const (
	SignalBuy   SignalAction = "BUY"
	SignalWatch SignalAction = "WATCH"
	SignalHold  SignalAction = "HOLD"
)

// Signal is the terminal, user-facing procurement recommendation for a date.
type Signal struct {
	BaseModel
	AsOfDate     time.Time    `gorm:"not null;uniqueIndex;type:date"`
	Action       SignalAction `gorm:"not null"`
	Confidence   float64      `gorm:"not null"`
	DollarImpact float64      `gorm:"not null"`
	Rationale    string       `gorm:"not null"`
}

// Explanation is auxiliary provenance attached to a run: the features that
// drove the output, with a human-readable reason.
type Explanation struct {
	BaseModel
	RunId       string    `gorm:"not null;index"`
	AsOfDate    time.Time `gorm:"not null;index;type:date"`
	TopFeatures []byte    `gorm:"type:jsonb"`
	ReasonText  string    `gorm:"not null"`
}
