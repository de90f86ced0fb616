package ports

import (
	"context"

	"github.com/aretw0/stategraph/pkg/domain"
)

// CheckpointStore defines the interface for persisting invocation checkpoints.
// This allows for durable execution, enabling "Stop & Resume" of long graphs.
type CheckpointStore interface {
	// Save persists the checkpoint for a given run ID, replacing any previous one.
	Save(ctx context.Context, runID string, cp *domain.Checkpoint) error

	// Load retrieves the checkpoint for a given run ID.
	// Returns domain.ErrCheckpointNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Checkpoint, error)

	// Delete removes the checkpoint for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of stored runs.
	List(ctx context.Context) ([]string, error)
}
