package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

func policyForTest() datamodels.SignalPolicyConfig {
	return datamodels.SignalPolicyConfig{
		HighRiskVolatility: 0.20,
		CostCeiling:        60.0,
		ConfidenceBar:      70.0,
		VolumeLbs:          100000,
		PriceScale:         100,
		TopFeatureCount:    3,
	}
}

func ensembleRow(asOf time.Time, h int, point, lower, upper, confidence float64) datamodels.EnsembleForecast {
	return datamodels.EnsembleForecast{
		AsOfDate:      asOf,
		HorizonDays:   h,
		PointEstimate: point,
		LowerBound:    lower,
		UpperBound:    upper,
		Confidence:    confidence,
	}
}

func TestDeriveBuy(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	// tight band, current price under the lower bound, confident ensemble
	forecasts := []datamodels.EnsembleForecast{
		ensembleRow(asOf, 7, 50, 48, 52, 85),
		ensembleRow(asOf, 30, 51, 45, 57, 60),
	}
	signal, _, err := engine.Derive(asOf, 47.0, forecasts, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, datamodels.SignalBuy, signal.Action)
	assert.Equal(t, 85.0, signal.Confidence, "shortest horizon drives the decision")
	// (50 - 47) * 100000 / 100
	assert.InDelta(t, 3000.0, signal.DollarImpact, 1e-9)
	assert.Contains(t, signal.Rationale, "below forecast lower bound")
}

func TestDeriveHoldOnVolatility(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	// width 15 on point 50 => volatility 0.30 > 0.20
	forecasts := []datamodels.EnsembleForecast{ensembleRow(asOf, 7, 50, 42.5, 57.5, 90)}
	signal, _, err := engine.Derive(asOf, 41.0, forecasts, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, datamodels.SignalHold, signal.Action)
	assert.Contains(t, signal.Rationale, "high-risk threshold")
}

func TestDeriveHoldOnCostCeiling(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	forecasts := []datamodels.EnsembleForecast{ensembleRow(asOf, 7, 66, 64, 68, 90)}
	signal, _, err := engine.Derive(asOf, 61.0, forecasts, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, datamodels.SignalHold, signal.Action)
	assert.Contains(t, signal.Rationale, "cost ceiling")
	// impact can still be positive while the policy says hold
	assert.InDelta(t, 5000.0, signal.DollarImpact, 1e-9)
}

func TestDeriveWatchWhenConfidenceBelowBar(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	// under the lower bound but not confident enough to buy
	forecasts := []datamodels.EnsembleForecast{ensembleRow(asOf, 7, 50, 48, 52, 69.9)}
	signal, _, err := engine.Derive(asOf, 47.0, forecasts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, datamodels.SignalWatch, signal.Action)

	// exactly at the bar buys
	forecasts[0].Confidence = 70.0
	signal, _, err = engine.Derive(asOf, 47.0, forecasts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, datamodels.SignalBuy, signal.Action)
}

func TestDeriveWatchWhenPriceWithinBand(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	// price sits inside the interval, so there is no clear edge either way
	forecasts := []datamodels.EnsembleForecast{ensembleRow(asOf, 7, 0.61, 0.58, 0.64, 70)}
	signal, _, err := engine.Derive(asOf, 0.60, forecasts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, datamodels.SignalWatch, signal.Action)
}

func TestDeriveNegativeDollarImpact(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	forecasts := []datamodels.EnsembleForecast{ensembleRow(asOf, 7, 45, 44, 46, 80)}
	signal, _, err := engine.Derive(asOf, 48.0, forecasts, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, -3000.0, signal.DollarImpact, 1e-9)
}

func TestDeriveNoEnsembleRows(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	signal, changes, err := engine.Derive(asOf, 47.0, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, datamodels.SignalWatch, signal.Action)
	assert.Equal(t, 0.0, signal.Confidence)
	assert.Equal(t, "insufficient data", signal.Rationale)
	assert.Empty(t, changes)
}

func TestDeriveRejectsCrossDateForecasts(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	forecasts := []datamodels.EnsembleForecast{
		ensembleRow(asOf, 7, 50, 48, 52, 85),
		ensembleRow(asOf.AddDate(0, 0, -1), 30, 51, 45, 57, 60),
	}
	_, _, err := engine.Derive(asOf, 47.0, forecasts, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvariantViolation))
}

func TestDeriveRationaleNamesTopDrivers(t *testing.T) {
	asOf := datamodels.Day(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	engine := NewEngine(policyForTest())

	latest := []datamodels.FeatureVector{
		{FeatureName: datamodels.FeatureRSI14, Value: 62},
		{FeatureName: datamodels.FeatureVolumeZ, Value: 0.4},
		{FeatureName: datamodels.FeatureDollarIndexZ, Value: 1.1},
		{FeatureName: datamodels.FeatureCrushZ, Value: 0.2},
	}
	previous := []datamodels.FeatureVector{
		{FeatureName: datamodels.FeatureRSI14, Value: 55},
		{FeatureName: datamodels.FeatureVolumeZ, Value: 0.3},
		{FeatureName: datamodels.FeatureDollarIndexZ, Value: -0.5},
		{FeatureName: datamodels.FeatureCrushZ, Value: 0.1},
	}

	forecasts := []datamodels.EnsembleForecast{ensembleRow(asOf, 7, 50, 48, 52, 85)}
	signal, changes, err := engine.Derive(asOf, 47.0, forecasts, latest, previous)
	require.NoError(t, err)

	require.Len(t, changes, 3)
	assert.Equal(t, datamodels.FeatureRSI14, changes[0].Name, "largest move ranks first")
	assert.Equal(t, datamodels.FeatureDollarIndexZ, changes[1].Name)
	assert.Contains(t, signal.Rationale, "drivers: "+datamodels.FeatureRSI14)
	assert.NotContains(t, signal.Rationale, datamodels.FeatureVolumeZ, "only the top movers are named")
}