package features

import (
	"context"
	"log/slog"
	"time"

	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

const (
	rsiPeriod      = 14
	volumeZWindow  = 60
	spreadZWindow  = 60
	macroZWindow   = 60
	weatherWindow  = 30
	historyFetch   = 120
	divergenceBand = 2.0 // |bopo_z| beyond this flags a divergence regime
)

// Engine computes the engineered feature vectors for one as-of date and
// replaces that date's rows in the feature store. Features whose upstream
// series are missing are omitted, never zero-filled.
type Engine struct {
	market  database.MarketReader
	store   database.FeatureStore
	symbol  datamodels.Symbol
	regions []string
}

func NewEngine(market database.MarketReader, store database.FeatureStore, pipelineConfig datamodels.PipelineConfig) *Engine {
	return &Engine{
		market:  market,
		store:   store,
		symbol:  pipelineConfig.Symbol,
		regions: pipelineConfig.WeatherRegions,
	}
}

// ComputeAndStore builds every computable feature for the date and writes
// them in one transaction. It fails only when there is no price bar for the
// date itself; everything else degrades to omission.
func (e *Engine) ComputeAndStore(ctx context.Context, date time.Time) ([]datamodels.FeatureVector, error) {
	prices, err := e.market.GetPriceHistory(ctx, e.symbol, date, historyFetch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read price history")
	}
	if len(prices) == 0 || !sameDay(prices[len(prices)-1].Date, date) {
		return nil, errors.Wrapf(errors.ErrDataInsufficient,
			"no price bar for %s on %s", e.symbol, date.Format("2006-01-02"))
	}

	closes := make([]float64, len(prices))
	volumes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
		volumes[i] = p.Volume
	}

	vectors := e.priceFeatures(closes, volumes)
	vectors = append(vectors, e.spreadFeatures(ctx, date, prices)...)
	vectors = append(vectors, e.macroFeatures(ctx, date)...)
	vectors = append(vectors, e.weatherFeatures(ctx, date)...)

	for i := range vectors {
		vectors[i].Date = date
		vectors[i].Entity = string(e.symbol)
	}

	if err := e.store.ReplaceFeatureVectors(ctx, date, vectors); err != nil {
		return nil, errors.Wrap(err, "failed to write feature vectors")
	}

	slog.Info("Computed features", "symbol", e.symbol, "date", date.Format("2006-01-02"), "count", len(vectors))
	return vectors, nil
}

func (e *Engine) priceFeatures(closes, volumes []float64) []datamodels.FeatureVector {
	var vectors []datamodels.FeatureVector

	if rsi, err := RelativeStrengthIndex(closes, rsiPeriod); err == nil {
		vectors = append(vectors, datamodels.FeatureVector{FeatureName: datamodels.FeatureRSI14, Value: rsi, Unit: "index"})
	}
	for _, ma := range []struct {
		name   string
		window int
	}{
		{datamodels.FeatureMA7, 7},
		{datamodels.FeatureMA30, 30},
		{datamodels.FeatureMA90, 90},
	} {
		if value, err := MovingAverage(closes, ma.window); err == nil {
			vectors = append(vectors, datamodels.FeatureVector{FeatureName: ma.name, Value: value, Unit: "usd"})
		}
	}
	if volZ, err := RollingZScore(volumes, volumeZWindow); err == nil {
		vectors = append(vectors, datamodels.FeatureVector{FeatureName: datamodels.FeatureVolumeZ, Value: volZ, Unit: "z"})
	}

	return vectors
}

// spreadFeatures derives the crush proxy against meal and the bean-oil vs
// palm-oil spread. Either leg missing drops that family of features.
func (e *Engine) spreadFeatures(ctx context.Context, date time.Time, oilPrices []datamodels.PriceObservation) []datamodels.FeatureVector {
	var vectors []datamodels.FeatureVector
	oilByDate := closesByDate(oilPrices)

	meal, err := e.market.GetPriceHistory(ctx, datamodels.SymbolSoybeanMeal, date, historyFetch)
	if err != nil || len(meal) == 0 {
		slog.Debug("No meal series, skipping crush features", "date", date.Format("2006-01-02"))
	} else {
		ratios := alignedSeries(oilByDate, meal, func(oil, other float64) float64 {
			return oil / other
		})
		if len(ratios) > 0 {
			vectors = append(vectors, datamodels.FeatureVector{
				FeatureName: datamodels.FeatureCrushRatio, Value: ratios[len(ratios)-1], Unit: "ratio"})
			if z, zErr := RollingZScore(ratios, spreadZWindow); zErr == nil {
				vectors = append(vectors, datamodels.FeatureVector{FeatureName: datamodels.FeatureCrushZ, Value: z, Unit: "z"})
			}
		}
	}

	palm, err := e.market.GetPriceHistory(ctx, datamodels.SymbolPalmOil, date, historyFetch)
	if err != nil || len(palm) == 0 {
		slog.Debug("No palm series, skipping bopo features", "date", date.Format("2006-01-02"))
	} else {
		spreads := alignedSeries(oilByDate, palm, func(oil, other float64) float64 {
			return oil - other
		})
		if len(spreads) > 0 {
			vectors = append(vectors, datamodels.FeatureVector{
				FeatureName: datamodels.FeatureBopoSpread, Value: spreads[len(spreads)-1], Unit: "usd"})
			if z, zErr := RollingZScore(spreads, spreadZWindow); zErr == nil {
				divergence := 0.0
				if z > divergenceBand || z < -divergenceBand {
					divergence = 1.0
				}
				vectors = append(vectors,
					datamodels.FeatureVector{FeatureName: datamodels.FeatureBopoZ, Value: z, Unit: "z"},
					datamodels.FeatureVector{FeatureName: datamodels.FeatureBopoDivergence, Value: divergence, Unit: "flag"})
			}
		}
	}

	return vectors
}

func (e *Engine) macroFeatures(ctx context.Context, date time.Time) []datamodels.FeatureVector {
	var vectors []datamodels.FeatureVector

	dxy, err := e.market.GetMacroHistory(ctx, datamodels.MacroSeriesDollarIndex, date, historyFetch)
	if err == nil && len(dxy) > 0 {
		values := make([]float64, len(dxy))
		for i, o := range dxy {
			values[i] = o.Value
		}
		if z, zErr := RollingZScore(values, macroZWindow); zErr == nil {
			vectors = append(vectors, datamodels.FeatureVector{FeatureName: datamodels.FeatureDollarIndexZ, Value: z, Unit: "z"})
		}
	}

	rates, err := e.market.GetMacroHistory(ctx, datamodels.MacroSeriesFedFunds, date, 1)
	if err == nil && len(rates) > 0 {
		vectors = append(vectors, datamodels.FeatureVector{
			FeatureName: datamodels.FeatureRateLevel, Value: rates[len(rates)-1].Value, Unit: "pct"})
	}

	return vectors
}

// weatherFeatures scores each region's latest metric reading against its own
// trailing window. Regions with too little history are skipped.
func (e *Engine) weatherFeatures(ctx context.Context, date time.Time) []datamodels.FeatureVector {
	var vectors []datamodels.FeatureVector

	for _, region := range e.regions {
		obs, err := e.market.GetWeatherHistory(ctx, region, date, historyFetch)
		if err != nil || len(obs) == 0 {
			continue
		}
		metric := obs[len(obs)-1].Metric
		var values []float64
		for _, o := range obs {
			if o.Metric == metric {
				values = append(values, o.Value)
			}
		}
		if z, zErr := RollingZScore(values, weatherWindow); zErr == nil {
			vectors = append(vectors, datamodels.FeatureVector{
				FeatureName: datamodels.FeatureWeatherPrefix + region, Value: z, Unit: "z"})
		}
	}

	return vectors
}

func sameDay(a, b time.Time) bool {
	return datamodels.Day(a).Equal(datamodels.Day(b))
}

func closesByDate(prices []datamodels.PriceObservation) map[time.Time]float64 {
	byDate := make(map[time.Time]float64, len(prices))
	for _, p := range prices {
		byDate[datamodels.Day(p.Date)] = p.Close
	}
	return byDate
}

// alignedSeries combines the primary close with another symbol's close on
// the dates both traded, in the other symbol's date order.
func alignedSeries(oilByDate map[time.Time]float64, other []datamodels.PriceObservation, combine func(oil, other float64) float64) []float64 {
	var out []float64
	for _, p := range other {
		if oil, ok := oilByDate[datamodels.Day(p.Date)]; ok {
			out = append(out, combine(oil, p.Close))
		}
	}
	return out
}
