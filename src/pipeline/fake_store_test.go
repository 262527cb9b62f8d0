package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

// fakeStore is an in-memory Store with the same semantics as the postgres
// implementation, including try-lock contention and idempotent completion.
type fakeStore struct {
	mu sync.Mutex

	prices  map[datamodels.Symbol][]datamodels.PriceObservation
	macro   map[datamodels.MacroSeries][]datamodels.MacroObservation
	weather map[string][]datamodels.WeatherObservation

	features     map[time.Time][]datamodels.FeatureVector
	runs         map[string]*datamodels.ModelRun
	points       map[string][]datamodels.ForecastPoint
	ensembles    map[time.Time][]datamodels.EnsembleForecast
	signals      map[time.Time]datamodels.Signal
	explanations []datamodels.Explanation

	locks map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prices:    make(map[datamodels.Symbol][]datamodels.PriceObservation),
		macro:     make(map[datamodels.MacroSeries][]datamodels.MacroObservation),
		weather:   make(map[string][]datamodels.WeatherObservation),
		features:  make(map[time.Time][]datamodels.FeatureVector),
		runs:      make(map[string]*datamodels.ModelRun),
		points:    make(map[string][]datamodels.ForecastPoint),
		ensembles: make(map[time.Time][]datamodels.EnsembleForecast),
		signals:   make(map[time.Time]datamodels.Signal),
		locks:     make(map[string]bool),
	}
}

func (s *fakeStore) GetPriceHistory(ctx context.Context, symbol datamodels.Symbol, asOfDate time.Time, limit int) ([]datamodels.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datamodels.PriceObservation
	for _, p := range s.prices[symbol] {
		if !p.Date.After(asOfDate) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) GetPriceObservation(ctx context.Context, symbol datamodels.Symbol, date time.Time) (*datamodels.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prices[symbol] {
		if p.Date.Equal(date) {
			obs := p
			return &obs, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetMacroHistory(ctx context.Context, series datamodels.MacroSeries, asOfDate time.Time, limit int) ([]datamodels.MacroObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datamodels.MacroObservation
	for _, o := range s.macro[series] {
		if !o.Date.After(asOfDate) {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) GetWeatherHistory(ctx context.Context, region string, asOfDate time.Time, limit int) ([]datamodels.WeatherObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datamodels.WeatherObservation
	for _, o := range s.weather[region] {
		if !o.Date.After(asOfDate) {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) ReplaceFeatureVectors(ctx context.Context, date time.Time, vectors []datamodels.FeatureVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]datamodels.FeatureVector, len(vectors))
	copy(copied, vectors)
	s.features[date] = copied
	return nil
}

func (s *fakeStore) GetFeatureVectors(ctx context.Context, date time.Time) ([]datamodels.FeatureVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features[date], nil
}

func (s *fakeStore) GetFeatureHistory(ctx context.Context, entity string, featureName string, asOfDate time.Time, limit int) ([]datamodels.FeatureVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datamodels.FeatureVector
	for date, vectors := range s.features {
		if date.After(asOfDate) {
			continue
		}
		for _, v := range vectors {
			if v.Entity == entity && v.FeatureName == featureName {
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) InsertModelRun(ctx context.Context, run datamodels.ModelRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.RunId]; exists {
		return errors.Wrapf(errors.ErrStoreConflict, "duplicate run id %s", run.RunId)
	}
	stored := run
	s.runs[run.RunId] = &stored
	return nil
}

func (s *fakeStore) UpdateRunParameters(ctx context.Context, runId string, parameters []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runId]
	if !ok || run.Status != datamodels.RunStatusRunning {
		return errors.Wrapf(errors.ErrInvariantViolation, "no running run with id %s", runId)
	}
	run.Parameters = parameters
	return nil
}

func (s *fakeStore) CompleteModelRun(ctx context.Context, runId string, status datamodels.RunStatus, reason string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runId]
	if !ok {
		return errors.Wrapf(errors.ErrInvariantViolation, "no model run with id %s", runId)
	}
	if run.Status != datamodels.RunStatusRunning {
		if run.Status == status {
			return nil
		}
		return errors.Wrapf(errors.ErrInvariantViolation,
			"run %s already terminal with status %s, refusing %s", runId, run.Status, status)
	}
	run.Status = status
	run.Reason = reason
	run.FinishedAt = &finishedAt
	return nil
}

func (s *fakeStore) GetModelRun(ctx context.Context, runId string) (*datamodels.ModelRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runId]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (s *fakeStore) GetModelRunsByDate(ctx context.Context, date time.Time) ([]datamodels.ModelRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dayEnd := date.Add(24 * time.Hour)
	var out []datamodels.ModelRun
	for _, run := range s.runs {
		if !run.StartedAt.Before(date) && run.StartedAt.Before(dayEnd) {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (s *fakeStore) WriteForecastPoints(ctx context.Context, points []datamodels.ForecastPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.RunId] = append(s.points[p.RunId], p)
	}
	return nil
}

func (s *fakeStore) GetForecastPoints(ctx context.Context, runId string) ([]datamodels.ForecastPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points[runId], nil
}

func (s *fakeStore) ReplaceEnsembleForecasts(ctx context.Context, date time.Time, forecasts []datamodels.EnsembleForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]datamodels.EnsembleForecast, len(forecasts))
	copy(copied, forecasts)
	s.ensembles[date] = copied
	return nil
}

func (s *fakeStore) GetEnsembleForecasts(ctx context.Context, date time.Time) ([]datamodels.EnsembleForecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensembles[date], nil
}

func (s *fakeStore) UpsertSignal(ctx context.Context, signal datamodels.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[signal.AsOfDate] = signal
	return nil
}

func (s *fakeStore) GetSignal(ctx context.Context, date time.Time) (*datamodels.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	signal, ok := s.signals[date]
	if !ok {
		return nil, nil
	}
	return &signal, nil
}

func (s *fakeStore) WriteExplanation(ctx context.Context, explanation datamodels.Explanation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.explanations = append(s.explanations, explanation)
	return nil
}

func (s *fakeStore) GetExplanations(ctx context.Context, date time.Time) ([]datamodels.Explanation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datamodels.Explanation
	for _, e := range s.explanations {
		if e.AsOfDate.Equal(date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) WithRunLock(ctx context.Context, symbol datamodels.Symbol, date time.Time, fn func() error) error {
	key := string(symbol) + date.Format("2006-01-02")

	s.mu.Lock()
	if s.locks[key] {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrStoreConflict, "run already in progress for %s", key)
	}
	s.locks[key] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.locks, key)
		s.mu.Unlock()
	}()
	return fn()
}

// holdLock grabs the advisory lock out-of-band to simulate a concurrent run.
func (s *fakeStore) holdLock(symbol datamodels.Symbol, date time.Time) func() {
	key := string(symbol) + date.Format("2006-01-02")
	s.mu.Lock()
	s.locks[key] = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.locks, key)
		s.mu.Unlock()
	}
}
