package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/ensemble"
	"cropbot/src/features"
	"cropbot/src/forecasters"
	"cropbot/src/metrics"
	"cropbot/src/registry"
	"cropbot/src/signals"
	"cropbot/src/utils/errors"
)

// Store is the slice of the database the pipeline needs. The production
// database satisfies it; tests use an in-memory fake.
type Store interface {
	database.MarketReader
	database.FeatureStore
	database.RunStore
	database.ResultStore
	database.LockStore
}

// StageStatus is one stage's outcome inside a pipeline summary.
type StageStatus struct {
	Stage    string               `json:"stage"`
	RunId    string               `json:"run_id"`
	Status   datamodels.RunStatus `json:"status"`
	Reason   string               `json:"reason,omitempty"`
	Duration time.Duration        `json:"duration"`
}

// Summary is what one pipeline invocation reports back.
type Summary struct {
	AsOfDate time.Time          `json:"as_of_date"`
	Stages   []StageStatus      `json:"stages"`
	Signal   *datamodels.Signal `json:"signal,omitempty"`
}

// Orchestrator wires the stages together: features, then both forecasters
// concurrently, then ensemble, then signal, all under one per-(symbol, date)
// advisory lock. Stage failures degrade the run instead of aborting it; only
// lock contention and invariant violations surface as errors.
type Orchestrator struct {
	store         Store
	registry      *registry.Registry
	featureEngine *features.Engine
	baseline      forecasters.Forecaster
	sequence      forecasters.Forecaster
	reconciler    *ensemble.Reconciler
	signalEngine  *signals.Engine
	config        datamodels.PipelineConfig
	metricsWriter metrics.MetricsWriter
}

func NewOrchestrator(store Store, config datamodels.CropbotConfig, metricsWriter metrics.MetricsWriter) *Orchestrator {
	return &Orchestrator{
		store:         store,
		registry:      registry.NewRegistry(store),
		featureEngine: features.NewEngine(store, store, config.PipelineConfig),
		baseline:      forecasters.NewBaselineForecaster(store, store, config.BaselineConfig, config.PipelineConfig),
		sequence:      forecasters.NewSequenceForecaster(store, store, config.SequenceConfig, config.PipelineConfig),
		reconciler:    ensemble.NewReconciler(config.EnsembleConfig),
		signalEngine:  signals.NewEngine(config.SignalPolicy),
		config:        config.PipelineConfig,
		metricsWriter: metricsWriter,
	}
}

// Run executes the full pipeline for one as-of date.
func (o *Orchestrator) Run(ctx context.Context, asOf time.Time) (*Summary, error) {
	asOf = datamodels.Day(asOf)
	summary := &Summary{AsOfDate: asOf}

	err := o.withLock(ctx, asOf, func() error {
		return o.runStages(ctx, asOf, summary)
	})
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// RunRange executes the pipeline for every day in [from, to]. A failed day
// is logged and recorded; the range keeps going.
func (o *Orchestrator) RunRange(ctx context.Context, from, to time.Time) ([]Summary, error) {
	from, to = datamodels.Day(from), datamodels.Day(to)
	if to.Before(from) {
		return nil, errors.Newf("invalid range: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var summaries []Summary
	failed := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		summary, err := o.Run(ctx, day)
		if err != nil {
			slog.Error("Pipeline run failed", "date", day.Format("2006-01-02"), "error", err)
			failed++
		}
		if summary != nil {
			summaries = append(summaries, *summary)
		}
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}
	}
	if failed > 0 {
		return summaries, errors.Newf("%d of %d days failed", failed, len(summaries))
	}
	return summaries, nil
}

func (o *Orchestrator) withLock(ctx context.Context, asOf time.Time, fn func() error) error {
	var err error
	for attempt := 0; attempt < o.config.LockAttempts; attempt++ {
		if attempt > 0 {
			slog.Info("Run lock contended, backing off",
				"symbol", o.config.Symbol, "date", asOf.Format("2006-01-02"), "attempt", attempt)
			select {
			case <-time.After(o.config.LockBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = o.store.WithRunLock(ctx, o.config.Symbol, asOf, fn)
		if !errors.Is(err, errors.ErrStoreConflict) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) runStages(ctx context.Context, asOf time.Time, summary *Summary) error {
	// stage 1: features
	featureStatus := o.runStage(ctx, asOf, datamodels.ModelNameFeatures, func(stageCtx context.Context, runId string) (int, error) {
		vectors, err := o.featureEngine.ComputeAndStore(stageCtx, asOf)
		return len(vectors), err
	})
	summary.Stages = append(summary.Stages, featureStatus)

	// stages 2 and 3: forecasters, concurrently
	type forecastOutcome struct {
		status StageStatus
		source *ensemble.Source
	}
	outcomes := make([]forecastOutcome, 2)
	var wg sync.WaitGroup
	for i, f := range []forecasters.Forecaster{o.baseline, o.sequence} {
		wg.Add(1)
		go func(slot int, forecaster forecasters.Forecaster) {
			defer wg.Done()
			status, source := o.runForecaster(ctx, asOf, forecaster)
			outcomes[slot] = forecastOutcome{status: status, source: source}
		}(i, f)
	}
	wg.Wait()

	var sources []ensemble.Source
	for _, outcome := range outcomes {
		summary.Stages = append(summary.Stages, outcome.status)
		if outcome.source != nil {
			sources = append(sources, *outcome.source)
		}
	}

	// stage 4: ensemble
	var combined []datamodels.EnsembleForecast
	ensembleStatus := o.runStage(ctx, asOf, datamodels.ModelNameEnsemble, func(stageCtx context.Context, runId string) (int, error) {
		combined = o.reconciler.Combine(asOf, sources)
		if err := o.store.ReplaceEnsembleForecasts(stageCtx, asOf, combined); err != nil {
			return 0, err
		}
		if len(combined) == 0 {
			return 0, errors.Wrap(errors.ErrDataInsufficient, "no forecaster output to reconcile")
		}
		return len(combined), nil
	})
	summary.Stages = append(summary.Stages, ensembleStatus)

	// stage 5: signal
	var terminal *datamodels.Signal
	signalStatus := o.runStage(ctx, asOf, datamodels.ModelNameSignal, func(stageCtx context.Context, runId string) (int, error) {
		signal, changes, err := o.deriveSignal(stageCtx, asOf, combined)
		if err != nil {
			return 0, err
		}
		if err := o.store.UpsertSignal(stageCtx, signal); err != nil {
			return 0, err
		}
		if writeErr := o.writeSignalExplanation(stageCtx, runId, asOf, signal, changes); writeErr != nil {
			slog.Warn("Failed to write signal explanation", "error", writeErr)
		}
		terminal = &signal
		return 1, nil
	})
	summary.Stages = append(summary.Stages, signalStatus)
	summary.Signal = terminal

	if signalStatus.Status == datamodels.RunStatusFailed && signalStatus.Reason != datamodels.RunReasonTimeout {
		return errors.Newf("signal stage failed: %s", signalStatus.Reason)
	}
	return nil
}

// runStage brackets one unit of work with a registry run, a stage timeout,
// and a telemetry record.
func (o *Orchestrator) runStage(ctx context.Context, asOf time.Time, name string,
	work func(ctx context.Context, runId string) (int, error)) StageStatus {

	status := StageStatus{Stage: name, Status: datamodels.RunStatusFailed}

	runId, err := o.registry.BeginRun(ctx, name, map[string]interface{}{
		"as_of":  asOf.Format("2006-01-02"),
		"symbol": o.config.Symbol,
	})
	if err != nil {
		status.Reason = err.Error()
		slog.Error("Failed to register stage run", "stage", name, "error", err)
		return status
	}
	status.RunId = runId

	stageCtx := ctx
	var cancel context.CancelFunc
	if o.config.StageTimeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, o.config.StageTimeout)
		defer cancel()
	}

	started := time.Now()
	rows, workErr := work(stageCtx, runId)
	status.Duration = time.Since(started)

	if workErr != nil {
		status.Status = datamodels.RunStatusFailed
		status.Reason = classifyStageError(stageCtx, workErr)
		slog.Warn("Stage failed", "stage", name, "reason", status.Reason, "error", workErr)
	} else {
		status.Status = datamodels.RunStatusSucceeded
	}

	if completeErr := o.registry.CompleteRun(ctx, runId, status.Status, status.Reason); completeErr != nil {
		slog.Error("Failed to complete stage run", "stage", name, "error", completeErr)
	}

	o.writeStageMetric(ctx, status, asOf, rows)
	return status
}

// runForecaster runs one forecaster as a stage and, on success, persists its
// forecast points and hands its output to the ensemble.
func (o *Orchestrator) runForecaster(ctx context.Context, asOf time.Time, forecaster forecasters.Forecaster) (StageStatus, *ensemble.Source) {
	var source *ensemble.Source

	status := o.runStage(ctx, asOf, forecaster.Name(), func(stageCtx context.Context, runId string) (int, error) {
		result, err := forecaster.Forecast(stageCtx, asOf)
		if err != nil {
			return 0, err
		}

		if paramErr := o.registry.RecordParameters(stageCtx, runId, result.Parameters); paramErr != nil {
			slog.Warn("Failed to record run parameters", "stage", forecaster.Name(), "error", paramErr)
		}

		points := make([]datamodels.ForecastPoint, len(result.Forecasts))
		for i, f := range result.Forecasts {
			points[i] = datamodels.ForecastPoint{
				RunId:         runId,
				TargetDate:    datamodels.Day(f.TargetDate),
				HorizonDays:   f.HorizonDays,
				PointEstimate: f.PointEstimate,
				LowerBound:    f.LowerBound,
				UpperBound:    f.UpperBound,
				ModelVersion:  result.ModelVersion,
			}
		}
		if err := o.store.WriteForecastPoints(stageCtx, points); err != nil {
			return 0, err
		}

		if len(result.TopFeatures) > 0 {
			topJson, _ := json.Marshal(result.TopFeatures)
			explanation := datamodels.Explanation{
				RunId:       runId,
				AsOfDate:    asOf,
				TopFeatures: topJson,
				ReasonText:  "model weights by feature",
			}
			if err := o.store.WriteExplanation(stageCtx, explanation); err != nil {
				slog.Warn("Failed to write forecaster explanation", "stage", forecaster.Name(), "error", err)
			}
		}

		source = &ensemble.Source{RunId: runId, Kind: forecaster.Kind(), Forecasts: result.Forecasts}
		return len(points), nil
	})

	if status.Status != datamodels.RunStatusSucceeded {
		return status, nil
	}
	return status, source
}

func (o *Orchestrator) deriveSignal(ctx context.Context, asOf time.Time,
	combined []datamodels.EnsembleForecast) (datamodels.Signal, []signals.FeatureChange, error) {

	currentPrice := 0.0
	if obs, err := o.store.GetPriceObservation(ctx, o.config.Symbol, asOf); err == nil && obs != nil {
		currentPrice = obs.Close
	} else if history, histErr := o.store.GetPriceHistory(ctx, o.config.Symbol, asOf, 1); histErr == nil && len(history) > 0 {
		currentPrice = history[len(history)-1].Close
	}

	latest, err := o.store.GetFeatureVectors(ctx, asOf)
	if err != nil {
		return datamodels.Signal{}, nil, err
	}
	previous, err := o.store.GetFeatureVectors(ctx, asOf.AddDate(0, 0, -1))
	if err != nil {
		return datamodels.Signal{}, nil, err
	}

	return o.signalEngine.Derive(asOf, currentPrice, combined, latest, previous)
}

func (o *Orchestrator) writeSignalExplanation(ctx context.Context, runId string, asOf time.Time,
	signal datamodels.Signal, changes []signals.FeatureChange) error {

	topJson, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	return o.store.WriteExplanation(ctx, datamodels.Explanation{
		RunId:       runId,
		AsOfDate:    asOf,
		TopFeatures: topJson,
		ReasonText:  signal.Rationale,
	})
}

func (o *Orchestrator) writeStageMetric(ctx context.Context, status StageStatus, asOf time.Time, rows int) {
	if o.metricsWriter == nil {
		return
	}
	metric := metrics.NewStageMetric(datamodels.StageMetrics{
		Stage:       status.Stage,
		RunId:       status.RunId,
		AsOfDate:    asOf,
		Status:      status.Status,
		Duration:    status.Duration,
		RowsWritten: rows,
	})
	if err := o.metricsWriter.Write(ctx, metric); err != nil {
		slog.Warn("Failed to write stage metric", "stage", status.Stage, "error", err)
	}
}

func classifyStageError(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, errors.ErrDataInsufficient):
		return datamodels.RunReasonInsufficientData
	case errors.Is(err, errors.ErrNumericDivergence):
		return datamodels.RunReasonNumericDivergence
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return datamodels.RunReasonTimeout
	default:
		return err.Error()
	}
}
