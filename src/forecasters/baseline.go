package forecasters

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/features"
	"cropbot/src/utils/errors"
)

const baselineModelVersion = "baseline_arx_v1"

// Exogenous feature series the AR fit regresses on when their history fully
// covers the training window.
var baselineExogFeatures = []string{
	datamodels.FeatureDollarIndexZ,
	datamodels.FeatureCrushZ,
	datamodels.FeatureBopoZ,
}

// BaselineForecaster fits AR(1) with drift plus exogenous regressors on the
// trailing close window and projects each horizon in closed form. It never
// fails: thin or degenerate history degrades to a variance band around the
// last close, and an empty history to the zero forecast.
type BaselineForecaster struct {
	market   database.MarketReader
	features database.FeatureStore
	config   datamodels.BaselineConfig
	symbol   datamodels.Symbol
	horizons []int
	shortest int
}

func NewBaselineForecaster(market database.MarketReader, features database.FeatureStore,
	config datamodels.BaselineConfig, pipelineConfig datamodels.PipelineConfig) *BaselineForecaster {
	return &BaselineForecaster{
		market:   market,
		features: features,
		config:   config,
		symbol:   pipelineConfig.Symbol,
		horizons: pipelineConfig.Horizons,
		shortest: pipelineConfig.ShortestHorizon(),
	}
}

func (b *BaselineForecaster) Kind() datamodels.ForecasterKind { return datamodels.ForecasterKindBaseline }
func (b *BaselineForecaster) Name() string                    { return datamodels.ModelNameBaseline }

func (b *BaselineForecaster) Forecast(ctx context.Context, asOf time.Time) (*Result, error) {
	prices, err := b.market.GetPriceHistory(ctx, b.symbol, asOf, b.config.TrainingWindow)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read price history")
	}

	if len(prices) == 0 {
		return b.emptyHistoryResult(asOf), nil
	}

	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}

	if len(closes) >= b.config.MinHistory {
		if result := b.fitAndProject(ctx, asOf, prices, closes); result != nil {
			return result, nil
		}
		slog.Warn("AR fit degenerate, using variance band", "symbol", b.symbol, "date", asOf.Format("2006-01-02"))
	}

	return b.varianceBandResult(asOf, closes), nil
}

// fitAndProject returns nil when the fit cannot be trusted, which sends the
// caller down the fallback path.
func (b *BaselineForecaster) fitAndProject(ctx context.Context, asOf time.Time,
	prices []datamodels.PriceObservation, closes []float64) *Result {

	exogNames, exogByDate := b.loadExog(ctx, asOf, prices)

	// rows predict y_t from [1, y_{t-1}, x_{t-1}...]
	n := len(closes) - 1
	cols := 2 + len(exogNames)
	X := mat.NewDense(n, cols, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		X.Set(i, 1, closes[i])
		for j, name := range exogNames {
			X.Set(i, 2+j, exogByDate[name][datamodels.Day(prices[i].Date)])
		}
		y.SetVec(i, closes[i+1])
	}

	w, err := ridgeSolve(X, y, 0)
	if err != nil {
		return nil
	}

	drift := w.AtVec(0)
	phi := w.AtVec(1)
	if math.Abs(phi) >= 1 || !finite(drift, phi) {
		return nil
	}

	exogLevel := 0.0
	last := prices[len(prices)-1]
	for j, name := range exogNames {
		exogLevel += w.AtVec(2+j) * exogByDate[name][datamodels.Day(last.Date)]
	}

	sigma := residualStd(X, y, w)
	lastClose := closes[len(closes)-1]

	forecasts := make([]HorizonForecast, 0, len(b.horizons))
	for _, h := range b.horizons {
		phiH := math.Pow(phi, float64(h))
		point := phiH*lastClose + (drift+exogLevel)*(1-phiH)/(1-phi)

		var varSum float64
		for i := 0; i < h; i++ {
			varSum += math.Pow(phi, 2*float64(i))
		}
		halfWidth := b.config.BandMultiplier * sigma * math.Sqrt(varSum)

		if !finite(point, halfWidth) {
			return nil
		}
		forecasts = append(forecasts, HorizonForecast{
			TargetDate:    asOf.AddDate(0, 0, h),
			HorizonDays:   h,
			PointEstimate: point,
			LowerBound:    point - halfWidth,
			UpperBound:    point + halfWidth,
		})
	}

	return &Result{
		Forecasts:    forecasts,
		Fallback:     false,
		ModelVersion: baselineModelVersion,
		Parameters: map[string]interface{}{
			"method":    "arx",
			"phi":       phi,
			"drift":     drift,
			"exog":      exogNames,
			"train_len": n,
		},
	}
}

// loadExog keeps only the candidate series whose feature history covers
// every training date.
func (b *BaselineForecaster) loadExog(ctx context.Context, asOf time.Time,
	prices []datamodels.PriceObservation) ([]string, map[string]map[time.Time]float64) {

	names := make([]string, 0, len(baselineExogFeatures))
	byDate := make(map[string]map[time.Time]float64)

	for _, name := range baselineExogFeatures {
		history, err := b.features.GetFeatureHistory(ctx, string(b.symbol), name, asOf, len(prices))
		if err != nil || len(history) == 0 {
			continue
		}
		values := make(map[time.Time]float64, len(history))
		for _, v := range history {
			values[datamodels.Day(v.Date)] = v.Value
		}
		covered := true
		for _, p := range prices {
			if _, ok := values[datamodels.Day(p.Date)]; !ok {
				covered = false
				break
			}
		}
		if covered {
			names = append(names, name)
			byDate[name] = values
		}
	}
	return names, byDate
}

// varianceBandResult centers every horizon on the last close with a band
// scaled by return volatility and the square root of the horizon ratio.
func (b *BaselineForecaster) varianceBandResult(asOf time.Time, closes []float64) *Result {
	lastClose := closes[len(closes)-1]

	var returnStd float64
	if changes := features.PercentChanges(closes); len(changes) >= 2 {
		returnStd, _ = stats.StandardDeviationSample(changes)
	}

	forecasts := make([]HorizonForecast, 0, len(b.horizons))
	for _, h := range b.horizons {
		multiplier := b.config.BandMultiplier * math.Sqrt(float64(h)/float64(b.shortest))
		halfWidth := multiplier * returnStd * lastClose
		forecasts = append(forecasts, HorizonForecast{
			TargetDate:    asOf.AddDate(0, 0, h),
			HorizonDays:   h,
			PointEstimate: lastClose,
			LowerBound:    lastClose - halfWidth,
			UpperBound:    lastClose + halfWidth,
		})
	}

	return &Result{
		Forecasts:    forecasts,
		Fallback:     true,
		ModelVersion: baselineModelVersion,
		Parameters: map[string]interface{}{
			"method":     "variance_band",
			"fallback":   true,
			"return_std": returnStd,
			"train_len":  len(closes),
		},
	}
}

// emptyHistoryResult is the degenerate forecast when nothing has ever been
// observed: zero point, unit band.
func (b *BaselineForecaster) emptyHistoryResult(asOf time.Time) *Result {
	forecasts := make([]HorizonForecast, 0, len(b.horizons))
	for _, h := range b.horizons {
		forecasts = append(forecasts, HorizonForecast{
			TargetDate:    asOf.AddDate(0, 0, h),
			HorizonDays:   h,
			PointEstimate: 0,
			LowerBound:    -1,
			UpperBound:    1,
		})
	}
	return &Result{
		Forecasts:    forecasts,
		Fallback:     true,
		ModelVersion: baselineModelVersion,
		Parameters: map[string]interface{}{
			"method":    "empty_history",
			"fallback":  true,
			"train_len": 0,
		},
	}
}
