package forecasters

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/features"
	"cropbot/src/utils/errors"
)

const (
	sequenceModelVersion   = "sequence_ridge_v1"
	sequenceBandMultiplier = 1.5
	sequenceSampleTarget   = 60
)

// Feature series fed to the ridge model alongside the return window. A
// series missing on any sample date drops out for that run.
var sequenceFeatureNames = []string{
	datamodels.FeatureRSI14,
	datamodels.FeatureVolumeZ,
	datamodels.FeatureDollarIndexZ,
	datamodels.FeatureCrushZ,
	datamodels.FeatureBopoZ,
}

// SequenceForecaster regresses forward returns on a flattened lookback
// window of daily returns plus the engineered features, one closed-form
// ridge solve per horizon. Given the same seed and input snapshot, two runs
// produce identical forecasts.
type SequenceForecaster struct {
	market   database.MarketReader
	features database.FeatureStore
	config   datamodels.SequenceConfig
	symbol   datamodels.Symbol
	horizons []int
}

func NewSequenceForecaster(market database.MarketReader, features database.FeatureStore,
	config datamodels.SequenceConfig, pipelineConfig datamodels.PipelineConfig) *SequenceForecaster {
	return &SequenceForecaster{
		market:   market,
		features: features,
		config:   config,
		symbol:   pipelineConfig.Symbol,
		horizons: pipelineConfig.Horizons,
	}
}

func (s *SequenceForecaster) Kind() datamodels.ForecasterKind { return datamodels.ForecasterKindSequence }
func (s *SequenceForecaster) Name() string                    { return datamodels.ModelNameSequence }

func (s *SequenceForecaster) Forecast(ctx context.Context, asOf time.Time) (*Result, error) {
	maxHorizon := s.horizons[0]
	for _, h := range s.horizons {
		if h > maxHorizon {
			maxHorizon = h
		}
	}

	fetch := s.config.Lookback + maxHorizon + sequenceSampleTarget + 1
	prices, err := s.market.GetPriceHistory(ctx, s.symbol, asOf, fetch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read price history")
	}
	if len(prices) < s.config.Lookback+2 {
		return nil, errors.Wrapf(errors.ErrDataInsufficient,
			"sequence model needs %d closes, have %d", s.config.Lookback+2, len(prices))
	}

	closes := make([]float64, len(prices))
	dates := make([]time.Time, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
		dates[i] = datamodels.Day(p.Date)
	}
	returns := features.PercentChanges(closes)

	featureNames, featureByDate, err := s.loadFeatures(ctx, asOf, dates)
	if err != nil {
		return nil, err
	}

	// every date in the lookback window behind asOf must carry a complete
	// feature row, otherwise the model has nothing trustworthy to condition on
	for i := len(dates) - s.config.Lookback; i < len(dates); i++ {
		if !featuresComplete(featureNames, featureByDate, dates[i]) {
			return nil, errors.Wrapf(errors.ErrDataInsufficient,
				"incomplete feature row on %s", dates[i].Format("2006-01-02"))
		}
	}

	cols := s.config.Lookback + len(featureNames) + 1
	lastClose := closes[len(closes)-1]

	forecasts := make([]HorizonForecast, 0, len(s.horizons))
	weightSums := make([]float64, len(featureNames))
	samples := 0

	for _, h := range s.horizons {
		X, y := s.buildSamples(closes, returns, dates, featureNames, featureByDate, h)
		rows, _ := X.Dims()
		if rows < s.config.Lookback {
			return nil, errors.Wrapf(errors.ErrDataInsufficient,
				"only %d training samples for horizon %d", rows, h)
		}
		samples = rows

		w, err := ridgeSolve(X, y, s.config.RidgeLambda)
		if err != nil {
			return nil, err
		}

		predictor := s.predictorRow(closes, returns, dates, featureNames, featureByDate, len(closes)-1)
		var forward float64
		for j, v := range predictor {
			forward += w.AtVec(j) * v
		}

		sigma := residualStd(X, y, w)
		point := lastClose * (1 + forward)
		halfWidth := sequenceBandMultiplier * sigma * lastClose
		if !finite(point, halfWidth) {
			return nil, errors.Wrapf(errors.ErrNumericDivergence, "non-finite forecast for horizon %d", h)
		}

		forecasts = append(forecasts, HorizonForecast{
			TargetDate:    asOf.AddDate(0, 0, h),
			HorizonDays:   h,
			PointEstimate: point,
			LowerBound:    point - halfWidth,
			UpperBound:    point + halfWidth,
		})

		for j := range featureNames {
			weight := w.AtVec(s.config.Lookback + j)
			if weight < 0 {
				weight = -weight
			}
			weightSums[j] += weight
		}
	}

	topFeatures := make([]WeightedFeature, len(featureNames))
	for j, name := range featureNames {
		topFeatures[j] = WeightedFeature{Name: name, Weight: weightSums[j] / float64(len(s.horizons))}
	}
	sort.Slice(topFeatures, func(i, j int) bool { return topFeatures[i].Weight > topFeatures[j].Weight })

	return &Result{
		Forecasts:    forecasts,
		Fallback:     false,
		ModelVersion: sequenceModelVersion,
		TopFeatures:  topFeatures,
		Parameters: map[string]interface{}{
			"method":   "ridge",
			"seed":     s.config.Seed,
			"lambda":   s.config.RidgeLambda,
			"lookback": s.config.Lookback,
			"features": featureNames,
			"samples":  samples,
			"cols":     cols,
		},
	}, nil
}

// buildSamples emits one row per time index with a full lookback window
// behind it, a target h days ahead, and a complete feature row on its date.
func (s *SequenceForecaster) buildSamples(closes, returns []float64, dates []time.Time,
	featureNames []string, featureByDate map[string]map[time.Time]float64, horizon int) (*mat.Dense, *mat.VecDense) {

	var rows [][]float64
	var targets []float64
	for t := s.config.Lookback; t < len(closes)-horizon; t++ {
		if !featuresComplete(featureNames, featureByDate, dates[t]) {
			continue
		}
		rows = append(rows, s.predictorRow(closes, returns, dates, featureNames, featureByDate, t))
		targets = append(targets, (closes[t+horizon]-closes[t])/closes[t])
	}

	cols := s.config.Lookback + len(featureNames) + 1
	if len(rows) == 0 {
		return mat.NewDense(1, cols, nil), mat.NewVecDense(1, nil)
	}
	X := mat.NewDense(len(rows), cols, nil)
	y := mat.NewVecDense(len(targets), nil)
	for i, row := range rows {
		X.SetRow(i, row)
		y.SetVec(i, targets[i])
	}
	return X, y
}

func (s *SequenceForecaster) predictorRow(closes, returns []float64, dates []time.Time,
	featureNames []string, featureByDate map[string]map[time.Time]float64, t int) []float64 {

	row := make([]float64, 0, s.config.Lookback+len(featureNames)+1)
	// returns[i] is the change into closes[i+1]
	for i := t - s.config.Lookback; i < t; i++ {
		row = append(row, returns[i])
	}
	for _, name := range featureNames {
		row = append(row, featureByDate[name][dates[t]])
	}
	row = append(row, 1) // intercept
	return row
}

func (s *SequenceForecaster) loadFeatures(ctx context.Context, asOf time.Time,
	dates []time.Time) ([]string, map[string]map[time.Time]float64, error) {

	names := make([]string, 0, len(sequenceFeatureNames))
	byDate := make(map[string]map[time.Time]float64)
	for _, name := range sequenceFeatureNames {
		history, err := s.features.GetFeatureHistory(ctx, string(s.symbol), name, asOf, len(dates))
		if err != nil {
			// a series that simply is not stored drops out; a deadline hit
			// mid-read fails the run instead of silently narrowing the model
			if ctx.Err() != nil {
				return nil, nil, errors.Wrapf(err, "failed to read %s history", name)
			}
			continue
		}
		if len(history) == 0 {
			continue
		}
		values := make(map[time.Time]float64, len(history))
		for _, v := range history {
			values[datamodels.Day(v.Date)] = v.Value
		}
		names = append(names, name)
		byDate[name] = values
	}
	return names, byDate, nil
}

func featuresComplete(names []string, byDate map[string]map[time.Time]float64, date time.Time) bool {
	for _, name := range names {
		if _, ok := byDate[name][date]; !ok {
			return false
		}
	}
	return true
}
