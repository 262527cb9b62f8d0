package ensemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropbot/src/datamodels"
	"cropbot/src/forecasters"
)

func reconcilerForTest() *Reconciler {
	return NewReconciler(datamodels.EnsembleConfig{
		BaselineWeight:         1,
		SequenceWeight:         1,
		SingleSourceConfidence: 50,
	})
}

func horizonForecast(h int, point, lower, upper float64) forecasters.HorizonForecast {
	return forecasters.HorizonForecast{
		TargetDate:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, h),
		HorizonDays:   h,
		PointEstimate: point,
		LowerBound:    lower,
		UpperBound:    upper,
	}
}

func TestCombineTwoSources(t *testing.T) {
	asOf := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	r := reconcilerForTest()

	combined := r.Combine(asOf, []Source{
		{RunId: "run-a", Kind: datamodels.ForecasterKindBaseline, Forecasts: []forecasters.HorizonForecast{horizonForecast(7, 50, 46, 54)}},
		{RunId: "run-b", Kind: datamodels.ForecasterKindSequence, Forecasts: []forecasters.HorizonForecast{horizonForecast(7, 52, 49, 55)}},
	})

	require.Len(t, combined, 1)
	got := combined[0]
	assert.Equal(t, 7, got.HorizonDays)
	assert.InDelta(t, 51.0, got.PointEstimate, 1e-9)
	// union interval covers both sources
	assert.Equal(t, 46.0, got.LowerBound)
	assert.Equal(t, 55.0, got.UpperBound)
	// gap 2, half-widths 4 and 3, mean 3.5 => d = 4/7
	assert.InDelta(t, 100*(1-0.5*2/3.5), got.Confidence, 1e-9)
	assert.Equal(t, "run-a,run-b", got.ContributingRuns)
}

func TestCombineSingleSourcePassesThrough(t *testing.T) {
	asOf := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	r := reconcilerForTest()

	combined := r.Combine(asOf, []Source{
		{RunId: "run-a", Kind: datamodels.ForecasterKindBaseline, Forecasts: []forecasters.HorizonForecast{horizonForecast(30, 48, 44, 52)}},
	})

	require.Len(t, combined, 1)
	assert.Equal(t, 48.0, combined[0].PointEstimate)
	assert.Equal(t, 44.0, combined[0].LowerBound)
	assert.Equal(t, 52.0, combined[0].UpperBound)
	assert.Equal(t, 50.0, combined[0].Confidence)
	assert.Equal(t, "run-a", combined[0].ContributingRuns)
}

func TestCombineMixedCoverage(t *testing.T) {
	asOf := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	r := reconcilerForTest()

	combined := r.Combine(asOf, []Source{
		{RunId: "run-a", Kind: datamodels.ForecasterKindBaseline, Forecasts: []forecasters.HorizonForecast{
			horizonForecast(7, 50, 46, 54),
			horizonForecast(30, 49, 42, 56),
		}},
		{RunId: "run-b", Kind: datamodels.ForecasterKindSequence, Forecasts: []forecasters.HorizonForecast{
			horizonForecast(7, 50, 47, 53),
		}},
	})

	require.Len(t, combined, 2)
	assert.Equal(t, 7, combined[0].HorizonDays)
	assert.Equal(t, "run-a,run-b", combined[0].ContributingRuns)
	assert.Equal(t, 30, combined[1].HorizonDays)
	assert.Equal(t, 50.0, combined[1].Confidence, "horizon covered by one source gets single-source confidence")
}

func TestCombineNoSources(t *testing.T) {
	asOf := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, reconcilerForTest().Combine(asOf, nil))
}

func TestAgreementConfidenceProperties(t *testing.T) {
	assert.Equal(t, 100.0, AgreementConfidence(0, 3))
	assert.Equal(t, 0.0, AgreementConfidence(1000, 3))

	// monotonic non-increasing in the gap
	prev := 101.0
	for gap := 0.0; gap <= 10; gap += 0.5 {
		c := AgreementConfidence(gap, 2)
		assert.LessOrEqual(t, c, prev)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 100.0)
		prev = c
	}

	// degenerate zero-width intervals
	assert.Equal(t, 100.0, AgreementConfidence(0, 0))
	assert.Equal(t, 0.0, AgreementConfidence(0.1, 0))
}
