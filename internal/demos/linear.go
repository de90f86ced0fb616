package demos

import (
	"context"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// Linear is the smallest graph: A writes x, B writes y.
func Linear(_ Deps, opts ...graph.Option) (*graph.Compiled, error) {
	schema, err := state.ParseSchema(map[string]string{
		"x": "int",
		"y": "int",
	})
	if err != nil {
		return nil, err
	}

	b := graph.New(schema)
	_ = b.AddNode("A", graph.Updater(func(context.Context, state.State) (state.Update, error) {
		return state.Update{"x": 1}, nil
	}), graph.Writes("x"))
	_ = b.AddNode("B", graph.Updater(func(context.Context, state.State) (state.Update, error) {
		return state.Update{"y": 2}, nil
	}), graph.Writes("y"))
	_ = b.AddEdge("A", "B")
	_ = b.AddEdge("B", graph.END)
	_ = b.SetEntryPoint("A")

	return b.Compile(opts...)
}
