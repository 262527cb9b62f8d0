package features

import (
	"github.com/montanaflynn/stats"

	"cropbot/src/utils/errors"
)

// RelativeStrengthIndex computes a simple-average RSI over the trailing
// period. Needs period+1 closes; an all-gain window saturates at 100.
func RelativeStrengthIndex(closes []float64, period int) (float64, error) {
	if len(closes) < period+1 {
		return 0, errors.Wrapf(errors.ErrDataInsufficient,
			"rsi needs %d closes, have %d", period+1, len(closes))
	}

	window := closes[len(closes)-period-1:]
	var gains, losses []float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	avgGain, err := stats.Mean(gains)
	if err != nil {
		return 0, err
	}
	avgLoss, err := stats.Mean(losses)
	if err != nil {
		return 0, err
	}
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MovingAverage is the mean of the last window values.
func MovingAverage(values []float64, window int) (float64, error) {
	if len(values) < window {
		return 0, errors.Wrapf(errors.ErrDataInsufficient,
			"moving average needs %d values, have %d", window, len(values))
	}
	return stats.Mean(values[len(values)-window:])
}

// RollingZScore scores the last value against the trailing window that
// contains it. A flat window scores 0.
func RollingZScore(values []float64, window int) (float64, error) {
	if len(values) < window {
		return 0, errors.Wrapf(errors.ErrDataInsufficient,
			"z-score needs %d values, have %d", window, len(values))
	}

	tail := values[len(values)-window:]
	mean, err := stats.Mean(tail)
	if err != nil {
		return 0, err
	}
	std, err := stats.StandardDeviationSample(tail)
	if err != nil {
		return 0, err
	}
	if std == 0 {
		return 0, nil
	}
	return (tail[len(tail)-1] - mean) / std, nil
}

// PercentChanges returns the day-over-day fractional changes of a series.
func PercentChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			changes = append(changes, 0)
			continue
		}
		changes = append(changes, (values[i]-values[i-1])/values[i-1])
	}
	return changes
}
