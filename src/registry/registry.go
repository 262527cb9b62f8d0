package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

// Registry hands out run IDs and records stage lifecycle against the run
// store. Every pipeline stage begins a run before doing work and completes
// it exactly once.
type Registry struct {
	store database.RunStore
}

func NewRegistry(store database.RunStore) *Registry {
	return &Registry{store: store}
}

// BeginRun registers a new running ModelRun and returns its ID.
func (r *Registry) BeginRun(ctx context.Context, modelName string, params map[string]interface{}) (string, error) {
	runId := uuid.New().String()

	var paramsJson []byte
	if params != nil {
		var err error
		paramsJson, err = json.Marshal(params)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal run parameters")
		}
	}

	run := datamodels.ModelRun{
		RunId:      runId,
		ModelName:  modelName,
		Parameters: paramsJson,
		Status:     datamodels.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := r.store.InsertModelRun(ctx, run); err != nil {
		return "", errors.Wrapf(err, "failed to register run for %s", modelName)
	}
	return runId, nil
}

// RecordParameters replaces a running run's parameters, for stages whose
// definitive parameters fall out of the work itself.
func (r *Registry) RecordParameters(ctx context.Context, runId string, params map[string]interface{}) error {
	paramsJson, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run parameters")
	}
	return r.store.UpdateRunParameters(ctx, runId, paramsJson)
}

// CompleteRun moves a run to a terminal status. Idempotent for repeats of
// the same terminal status; a conflicting terminal status is an invariant
// violation surfaced by the store.
func (r *Registry) CompleteRun(ctx context.Context, runId string, status datamodels.RunStatus, reason string) error {
	if status == datamodels.RunStatusRunning {
		return errors.Wrap(errors.ErrInvariantViolation, "cannot complete a run back to running")
	}
	return r.store.CompleteModelRun(ctx, runId, status, reason, time.Now().UTC())
}
