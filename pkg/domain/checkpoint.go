package domain

import "time"

// End is the sentinel routing target; reaching it finishes the invocation.
const End = "__end__"

// RunStatus describes where an invocation stands.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"   // At least one more node to execute
	StatusCompleted RunStatus = "completed" // END reached
	StatusFailed    RunStatus = "failed"    // Stopped by a run-time error
)

// Checkpoint is the persisted position of one invocation.
// It is written after every step so that a run can be inspected or resumed.
type Checkpoint struct {
	RunID string `json:"run_id"`
	Graph string `json:"graph,omitempty"`

	// Next is the node the run will execute next (End once completed).
	Next string `json:"next"`

	// Step counts completed steps.
	Step int `json:"step"`

	// Visits holds the per-node visit counters used for retry bounding.
	Visits map[string]int `json:"visits"`

	// Values is the merged state after the last successful step.
	Values map[string]any `json:"values"`

	// History lists the nodes executed so far, in order.
	History []string `json:"history"`

	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
