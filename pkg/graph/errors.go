package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/stategraph/pkg/state"
)

// Definition problems. Match them with errors.Is against a *DefinitionError.
var (
	ErrDuplicateNode    = errors.New("duplicate node")
	ErrUnknownNode      = errors.New("unknown node")
	ErrInvalidNode      = errors.New("invalid node")
	ErrNoEntryPoint     = errors.New("no entry point")
	ErrUnreachableNode  = errors.New("unreachable node")
	ErrDeadEnd          = errors.New("node has no way to advance")
	ErrConflictingEdges = errors.New("conflicting edges")
	ErrEmptyMapping     = errors.New("empty conditional mapping")
	ErrUndeclaredField  = state.ErrUndeclaredField
)

// Run-time sentinels.
var (
	// ErrInvalidInput wraps a failure to merge the caller's initial update.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNodePanic wraps a recovered panic raised by a node.
	ErrNodePanic = errors.New("node panicked")
	// ErrDecisionPanic wraps a recovered panic raised by a conditional edge's decision function.
	ErrDecisionPanic = errors.New("decision function panicked")
	// ErrRunCompleted is returned when resuming a run that already reached END.
	ErrRunCompleted = errors.New("run already completed")
)

// DefinitionError reports a malformed graph. It is never recoverable automatically:
// the graph author has to fix the definition.
type DefinitionError struct {
	Problems []error
}

func (e *DefinitionError) Error() string {
	if len(e.Problems) == 1 {
		return "graph definition: " + e.Problems[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph definition: %d problems:\n", len(e.Problems))
	for i, p := range e.Problems {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, p.Error())
	}
	return sb.String()
}

// Unwrap exposes every problem to errors.Is / errors.As.
func (e *DefinitionError) Unwrap() []error {
	return e.Problems
}

func definitionError(problems ...error) *DefinitionError {
	return &DefinitionError{Problems: problems}
}

// RoutingError is returned when the next node cannot be resolved at run time:
// a decision function produced a key missing from its mapping or panicked, or a
// Command pointed at a node the graph does not have.
type RoutingError struct {
	Node  string
	Key   string
	Goto  string
	Step  int
	State state.State
	Err   error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing from %q at step %d: %v", e.Node, e.Step, e.Err)
	}
	if e.Goto != "" {
		return fmt.Sprintf("routing from %q at step %d: command target %q is not a node", e.Node, e.Step, e.Goto)
	}
	return fmt.Sprintf("routing from %q at step %d: decision key %q has no mapping", e.Node, e.Step, e.Key)
}

// NodeExecutionError wraps a failure raised by a node's transformer.
// State is the last successfully merged state; nothing from the failing step is applied.
type NodeExecutionError struct {
	Node  string
	Step  int
	State state.State
	Err   error
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed at step %d: %v", e.Node, e.Step, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// RetryBudgetError is returned when a node is visited more often than the ceiling allows,
// which signals a cycle that did not terminate.
type RetryBudgetError struct {
	Node    string
	Visits  int
	Ceiling int
	Step    int
	State   state.State
}

func (e *RetryBudgetError) Error() string {
	return fmt.Sprintf("node %q exceeded its retry budget: visit %d with ceiling %d", e.Node, e.Visits, e.Ceiling)
}

// StateOf extracts the state carried by a run-time error, if any.
func StateOf(err error) (state.State, bool) {
	var nodeErr *NodeExecutionError
	if errors.As(err, &nodeErr) {
		return nodeErr.State, true
	}
	var routeErr *RoutingError
	if errors.As(err, &routeErr) {
		return routeErr.State, true
	}
	var budgetErr *RetryBudgetError
	if errors.As(err, &budgetErr) {
		return budgetErr.State, true
	}
	return state.State{}, false
}
