package ensemble

import (
	"math"
	"sort"
	"strings"
	"time"

	"cropbot/src/datamodels"
	"cropbot/src/forecasters"
)

// Agreement slope: confidence decays by 50 points per unit of normalized
// point gap.
const confidenceSlope = 0.5

// Source is one forecaster run's contribution to the ensemble.
type Source struct {
	RunId     string
	Kind      datamodels.ForecasterKind
	Forecasts []forecasters.HorizonForecast
}

// Reconciler merges the forecaster outputs into one per-horizon forecast
// with an agreement-based confidence score.
type Reconciler struct {
	config datamodels.EnsembleConfig
}

func NewReconciler(config datamodels.EnsembleConfig) *Reconciler {
	return &Reconciler{config: config}
}

// Combine produces one EnsembleForecast per horizon any source covered.
// Horizons covered by a single source pass through with the configured
// single-source confidence; horizons covered by both get the weighted point,
// the union interval, and the agreement confidence. No sources, no rows.
func (r *Reconciler) Combine(asOf time.Time, sources []Source) []datamodels.EnsembleForecast {
	type entry struct {
		forecast forecasters.HorizonForecast
		kind     datamodels.ForecasterKind
		runId    string
	}

	byHorizon := make(map[int][]entry)
	for _, source := range sources {
		for _, f := range source.Forecasts {
			byHorizon[f.HorizonDays] = append(byHorizon[f.HorizonDays], entry{forecast: f, kind: source.Kind, runId: source.RunId})
		}
	}

	horizons := make([]int, 0, len(byHorizon))
	for h := range byHorizon {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)

	out := make([]datamodels.EnsembleForecast, 0, len(horizons))
	for _, h := range horizons {
		entries := byHorizon[h]

		runIds := make([]string, 0, len(entries))
		for _, e := range entries {
			runIds = append(runIds, e.runId)
		}
		combined := datamodels.EnsembleForecast{
			AsOfDate:         asOf,
			HorizonDays:      h,
			ContributingRuns: strings.Join(runIds, ","),
		}

		if len(entries) == 1 {
			f := entries[0].forecast
			combined.PointEstimate = f.PointEstimate
			combined.LowerBound = f.LowerBound
			combined.UpperBound = f.UpperBound
			combined.Confidence = r.config.SingleSourceConfidence
			out = append(out, combined)
			continue
		}

		var weightedSum, weightTotal float64
		lower := math.Inf(1)
		upper := math.Inf(-1)
		for _, e := range entries {
			weight := r.weightFor(e.kind)
			weightedSum += weight * e.forecast.PointEstimate
			weightTotal += weight
			lower = math.Min(lower, e.forecast.LowerBound)
			upper = math.Max(upper, e.forecast.UpperBound)
		}

		first, second := entries[0].forecast, entries[1].forecast
		gap := math.Abs(first.PointEstimate - second.PointEstimate)
		meanHalfWidth := ((first.UpperBound-first.LowerBound)/2 + (second.UpperBound-second.LowerBound)/2) / 2

		combined.PointEstimate = weightedSum / weightTotal
		combined.LowerBound = lower
		combined.UpperBound = upper
		combined.Confidence = AgreementConfidence(gap, meanHalfWidth)
		out = append(out, combined)
	}

	return out
}

func (r *Reconciler) weightFor(kind datamodels.ForecasterKind) float64 {
	switch kind {
	case datamodels.ForecasterKindBaseline:
		return r.config.BaselineWeight
	case datamodels.ForecasterKindSequence:
		return r.config.SequenceWeight
	default:
		return 0
	}
}

// AgreementConfidence maps the normalized point gap d onto [0, 100]:
// 100 at perfect agreement, falling linearly, floored at 0. A zero-width
// interval pair scores 100 only when the points coincide exactly.
func AgreementConfidence(gap, meanHalfWidth float64) float64 {
	if meanHalfWidth <= 0 {
		if gap == 0 {
			return 100
		}
		return 0
	}
	d := gap / meanHalfWidth
	confidence := 100 * (1 - confidenceSlope*d)
	return math.Max(0, math.Min(100, confidence))
}
