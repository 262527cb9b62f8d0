package forecasters

import (
	"context"
	"time"

	"cropbot/src/datamodels"
)

// HorizonForecast is one horizon's output before it is attached to a run.
type HorizonForecast struct {
	TargetDate    time.Time
	HorizonDays   int
	PointEstimate float64
	LowerBound    float64
	UpperBound    float64
}

// WeightedFeature names a feature and the weight the model assigned it.
type WeightedFeature struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Result is everything a forecaster run produces: the per-horizon forecasts,
// the parameters to record on the run, and (when the model supports it) the
// features that drove the output.
type Result struct {
	Forecasts    []HorizonForecast
	Fallback     bool
	Parameters   map[string]interface{}
	TopFeatures  []WeightedFeature
	ModelVersion string
}

type Forecaster interface {
	Kind() datamodels.ForecasterKind
	Name() string
	Forecast(ctx context.Context, asOf time.Time) (*Result, error)
}
