package domain

import "errors"

// ErrCheckpointNotFound is returned when a run ID cannot be found in the store.
var ErrCheckpointNotFound = errors.New("checkpoint not found")
