package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

type fakeMarket struct {
	prices  map[datamodels.Symbol][]datamodels.PriceObservation
	macro   map[datamodels.MacroSeries][]datamodels.MacroObservation
	weather map[string][]datamodels.WeatherObservation
}

func (f *fakeMarket) GetPriceHistory(ctx context.Context, symbol datamodels.Symbol, asOfDate time.Time, limit int) ([]datamodels.PriceObservation, error) {
	var out []datamodels.PriceObservation
	for _, p := range f.prices[symbol] {
		if !p.Date.After(asOfDate) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMarket) GetPriceObservation(ctx context.Context, symbol datamodels.Symbol, date time.Time) (*datamodels.PriceObservation, error) {
	for _, p := range f.prices[symbol] {
		if p.Date.Equal(date) {
			obs := p
			return &obs, nil
		}
	}
	return nil, nil
}

func (f *fakeMarket) GetMacroHistory(ctx context.Context, series datamodels.MacroSeries, asOfDate time.Time, limit int) ([]datamodels.MacroObservation, error) {
	var out []datamodels.MacroObservation
	for _, o := range f.macro[series] {
		if !o.Date.After(asOfDate) {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMarket) GetWeatherHistory(ctx context.Context, region string, asOfDate time.Time, limit int) ([]datamodels.WeatherObservation, error) {
	var out []datamodels.WeatherObservation
	for _, o := range f.weather[region] {
		if !o.Date.After(asOfDate) {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeFeatureStore struct {
	written map[time.Time][]datamodels.FeatureVector
}

func (f *fakeFeatureStore) ReplaceFeatureVectors(ctx context.Context, date time.Time, vectors []datamodels.FeatureVector) error {
	if f.written == nil {
		f.written = make(map[time.Time][]datamodels.FeatureVector)
	}
	f.written[date] = vectors
	return nil
}

func (f *fakeFeatureStore) GetFeatureVectors(ctx context.Context, date time.Time) ([]datamodels.FeatureVector, error) {
	return f.written[date], nil
}

func (f *fakeFeatureStore) GetFeatureHistory(ctx context.Context, entity string, featureName string, asOfDate time.Time, limit int) ([]datamodels.FeatureVector, error) {
	return nil, nil
}

func dayN(end time.Time, offset int) time.Time {
	return datamodels.Day(end.AddDate(0, 0, offset))
}

func seedPrices(symbol datamodels.Symbol, end time.Time, n int, base float64) []datamodels.PriceObservation {
	prices := make([]datamodels.PriceObservation, 0, n)
	for i := n - 1; i >= 0; i-- {
		close := base + 5*math.Sin(float64(n-1-i)/9)
		prices = append(prices, datamodels.PriceObservation{
			Date:   dayN(end, -i),
			Symbol: symbol,
			Open:   close - 0.1,
			High:   close + 0.3,
			Low:    close - 0.3,
			Close:  close,
			Volume: 1000 + 50*math.Cos(float64(i)/4),
		})
	}
	return prices
}

func seedMarket(end time.Time) *fakeMarket {
	market := &fakeMarket{
		prices: map[datamodels.Symbol][]datamodels.PriceObservation{
			datamodels.SymbolSoybeanOil:  seedPrices(datamodels.SymbolSoybeanOil, end, 120, 48),
			datamodels.SymbolSoybeanMeal: seedPrices(datamodels.SymbolSoybeanMeal, end, 120, 330),
			datamodels.SymbolPalmOil:     seedPrices(datamodels.SymbolPalmOil, end, 120, 41),
		},
		macro:   map[datamodels.MacroSeries][]datamodels.MacroObservation{},
		weather: map[string][]datamodels.WeatherObservation{},
	}
	for i := 119; i >= 0; i-- {
		market.macro[datamodels.MacroSeriesDollarIndex] = append(market.macro[datamodels.MacroSeriesDollarIndex],
			datamodels.MacroObservation{Date: dayN(end, -i), Series: datamodels.MacroSeriesDollarIndex, Value: 103 + math.Sin(float64(i)/7)})
		market.macro[datamodels.MacroSeriesFedFunds] = append(market.macro[datamodels.MacroSeriesFedFunds],
			datamodels.MacroObservation{Date: dayN(end, -i), Series: datamodels.MacroSeriesFedFunds, Value: 4.25})
		market.weather["midwest"] = append(market.weather["midwest"],
			datamodels.WeatherObservation{Date: dayN(end, -i), Region: "midwest", Metric: "precip_mm", Value: 20 + 3*math.Sin(float64(i)/5)})
	}
	return market
}

func testPipelineConfig() datamodels.PipelineConfig {
	return datamodels.PipelineConfig{
		Symbol:         datamodels.SymbolSoybeanOil,
		Horizons:       []int{7, 30, 90},
		LockAttempts:   1,
		WeatherRegions: []string{"midwest"},
	}
}

func featureNames(vectors []datamodels.FeatureVector) map[string]float64 {
	names := make(map[string]float64, len(vectors))
	for _, v := range vectors {
		names[v.FeatureName] = v.Value
	}
	return names
}

func TestComputeAndStoreWritesCoreFeatures(t *testing.T) {
	end := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	market := seedMarket(end)
	store := &fakeFeatureStore{}
	engine := NewEngine(market, store, testPipelineConfig())

	vectors, err := engine.ComputeAndStore(context.Background(), end)
	require.NoError(t, err)

	names := featureNames(vectors)
	for _, want := range []string{
		datamodels.FeatureRSI14,
		datamodels.FeatureMA7,
		datamodels.FeatureMA30,
		datamodels.FeatureMA90,
		datamodels.FeatureVolumeZ,
		datamodels.FeatureCrushRatio,
		datamodels.FeatureCrushZ,
		datamodels.FeatureBopoSpread,
		datamodels.FeatureBopoZ,
		datamodels.FeatureBopoDivergence,
		datamodels.FeatureDollarIndexZ,
		datamodels.FeatureRateLevel,
		datamodels.FeatureWeatherPrefix + "midwest",
	} {
		assert.Contains(t, names, want)
	}

	for _, v := range vectors {
		assert.Equal(t, end, v.Date)
		assert.Equal(t, string(datamodels.SymbolSoybeanOil), v.Entity)
	}
	assert.Equal(t, 4.25, names[datamodels.FeatureRateLevel])
	assert.Len(t, store.written[end], len(vectors))
}

func TestComputeAndStoreOmitsMissingSeries(t *testing.T) {
	end := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	market := seedMarket(end)
	delete(market.prices, datamodels.SymbolPalmOil)
	store := &fakeFeatureStore{}
	engine := NewEngine(market, store, testPipelineConfig())

	vectors, err := engine.ComputeAndStore(context.Background(), end)
	require.NoError(t, err)

	names := featureNames(vectors)
	assert.NotContains(t, names, datamodels.FeatureBopoSpread)
	assert.NotContains(t, names, datamodels.FeatureBopoZ)
	assert.NotContains(t, names, datamodels.FeatureBopoDivergence)
	assert.Contains(t, names, datamodels.FeatureRSI14)
	assert.Contains(t, names, datamodels.FeatureCrushRatio)
}

func TestComputeAndStoreRequiresBarForDate(t *testing.T) {
	end := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	market := seedMarket(end.AddDate(0, 0, -3))
	store := &fakeFeatureStore{}
	engine := NewEngine(market, store, testPipelineConfig())

	_, err := engine.ComputeAndStore(context.Background(), end)
	assert.True(t, errors.Is(err, errors.ErrDataInsufficient))
	assert.Empty(t, store.written)
}
