package adapters

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jtarrant/recfuse/pkg/models"
)

// ErrNoCoverage is the sentinel returned when a model has no signal for a
// user/item pair. The fusion engine treats it as a zero contribution, not
// as a failure.
var ErrNoCoverage = errors.New("adapter: no coverage")

// ModelAdapter wraps one underlying scoring model behind a uniform surface
// so the fusion engine never needs to know model internals. New model types
// are added by implementing this interface, not by branching inside the
// engine.
type ModelAdapter interface {
	// Name returns the model key used in weight and contribution maps.
	Name() string

	// Score predicts a raw, model-native score for the pair. Implementations
	// return ErrNoCoverage when they carry no signal for the inputs.
	Score(ctx context.Context, userID, itemID uuid.UUID) (float64, error)

	// IncrementalUpdate folds a feedback batch into the model's state
	// without full retraining. Implementations must honor ctx cancellation;
	// a timed-out update is treated as failed by the caller.
	IncrementalUpdate(ctx context.Context, batch *models.UpdateBatch) error
}
