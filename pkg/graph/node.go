package graph

import (
	"context"

	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/state"
)

// END is the terminal routing target. Routing to it finishes the invocation.
const END = domain.End

// Result is what a node returns: a plain state.Update, or a Command that also
// names the next node. A nil Result is an empty update.
type Result interface {
	Delta() state.Update
}

// NodeFunc transforms the current state into a partial update.
// The state is a read-only view; nodes change it only through their Result.
// A returned error (or a panic) fails the invocation with a NodeExecutionError.
type NodeFunc func(ctx context.Context, s state.State) (Result, error)

// DecisionFunc inspects the state after a node ran and returns a routing key.
type DecisionFunc func(s state.State) string

// Command bundles a partial update with an explicit next node.
// A non-empty Goto overrides both static and conditional routing for that step.
type Command struct {
	Update state.Update
	Goto   string
}

// Delta implements Result.
func (c Command) Delta() state.Update { return c.Update }

// Goto returns a Command that only routes.
func Goto(target string) Command {
	return Command{Goto: target}
}

// Updater adapts a function returning a bare update into a NodeFunc.
func Updater(fn func(ctx context.Context, s state.State) (state.Update, error)) NodeFunc {
	return func(ctx context.Context, s state.State) (Result, error) {
		u, err := fn(ctx, s)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
}

type node struct {
	name         string
	fn           NodeFunc
	destinations []string
	writes       []string
}

// NodeOption configures a node at registration time.
type NodeOption func(*node)

// Destinations declares the targets a node may route to through Command.Goto.
// A node whose only way forward is a Command (e.g. a supervisor returning
// Goto(END)) must declare them so the graph can be checked at compile time.
func Destinations(targets ...string) NodeOption {
	return func(n *node) {
		n.destinations = append(n.destinations, targets...)
	}
}

// Writes declares the state fields a node updates. Compile rejects fields the
// schema does not declare.
func Writes(fields ...string) NodeOption {
	return func(n *node) {
		n.writes = append(n.writes, fields...)
	}
}
