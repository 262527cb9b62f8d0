package signals

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

// FeatureChange is one feature's day-over-day move, used to explain what is
// driving the recommendation.
type FeatureChange struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// Engine turns the reconciled forecast into a BUY / WATCH / HOLD
// recommendation under the configured policy thresholds.
type Engine struct {
	policy datamodels.SignalPolicyConfig
}

func NewEngine(policy datamodels.SignalPolicyConfig) *Engine {
	return &Engine{policy: policy}
}

// Derive evaluates the policy for one as-of date. The shortest-horizon
// ensemble row drives the decision; latest and previous feature vectors feed
// the rationale. No ensemble rows at all is not an error: the caller gets a
// neutral WATCH with zero confidence.
func (e *Engine) Derive(asOf time.Time, currentPrice float64, forecasts []datamodels.EnsembleForecast,
	latest, previous []datamodels.FeatureVector) (datamodels.Signal, []FeatureChange, error) {

	signal := datamodels.Signal{AsOfDate: asOf}

	if len(forecasts) == 0 {
		signal.Action = datamodels.SignalWatch
		signal.Confidence = 0
		signal.Rationale = "insufficient data"
		return signal, nil, nil
	}

	for _, f := range forecasts {
		if !datamodels.Day(f.AsOfDate).Equal(datamodels.Day(asOf)) {
			return datamodels.Signal{}, nil, errors.Wrapf(errors.ErrInvariantViolation,
				"ensemble forecast dated %s mixed into signal for %s",
				f.AsOfDate.Format("2006-01-02"), asOf.Format("2006-01-02"))
		}
	}

	decider := forecasts[0]
	for _, f := range forecasts[1:] {
		if f.HorizonDays < decider.HorizonDays {
			decider = f
		}
	}

	changes := topFeatureChanges(latest, previous, e.policy.TopFeatureCount)

	signal.Confidence = decider.Confidence
	signal.DollarImpact = (decider.PointEstimate - currentPrice) * e.policy.VolumeLbs / e.policy.PriceScale

	volatility := math.Inf(1)
	if decider.PointEstimate > 0 {
		volatility = (decider.UpperBound - decider.LowerBound) / decider.PointEstimate
	}

	var reason string
	switch {
	case volatility > e.policy.HighRiskVolatility:
		signal.Action = datamodels.SignalHold
		reason = fmt.Sprintf("forecast volatility %.3f above high-risk threshold %.3f", volatility, e.policy.HighRiskVolatility)
	case currentPrice > e.policy.CostCeiling:
		signal.Action = datamodels.SignalHold
		reason = fmt.Sprintf("price %.2f above cost ceiling %.2f", currentPrice, e.policy.CostCeiling)
	case currentPrice < decider.LowerBound && decider.Confidence >= e.policy.ConfidenceBar:
		signal.Action = datamodels.SignalBuy
		reason = fmt.Sprintf("price %.2f below forecast lower bound %.2f at confidence %.0f", currentPrice, decider.LowerBound, decider.Confidence)
	default:
		signal.Action = datamodels.SignalWatch
		reason = "no buy edge under current policy"
	}

	signal.Rationale = reason
	if len(changes) > 0 {
		parts := make([]string, len(changes))
		for i, c := range changes {
			parts[i] = fmt.Sprintf("%s %+.2f", c.Name, c.Delta)
		}
		signal.Rationale += "; drivers: " + strings.Join(parts, ", ")
	}

	return signal, changes, nil
}

// topFeatureChanges ranks features by the magnitude of their move between
// the previous and latest vectors. Features without both readings are
// skipped rather than assumed flat.
func topFeatureChanges(latest, previous []datamodels.FeatureVector, count int) []FeatureChange {
	if count <= 0 {
		return nil
	}

	previousByName := make(map[string]float64, len(previous))
	for _, v := range previous {
		previousByName[v.FeatureName] = v.Value
	}

	var changes []FeatureChange
	for _, v := range latest {
		before, ok := previousByName[v.FeatureName]
		if !ok {
			continue
		}
		changes = append(changes, FeatureChange{Name: v.FeatureName, Delta: v.Value - before})
	}

	sort.Slice(changes, func(i, j int) bool {
		return math.Abs(changes[i].Delta) > math.Abs(changes[j].Delta)
	})
	if len(changes) > count {
		changes = changes[:count]
	}
	return changes
}
