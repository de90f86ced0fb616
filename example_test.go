package stategraph_test

import (
	"context"
	"fmt"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

func Example() {
	schema := state.MustSchema(
		state.Replaced("x", state.Int()),
		state.Replaced("y", state.Int()),
	)

	b := graph.New(schema)
	_ = b.AddNode("A", graph.Updater(func(context.Context, state.State) (state.Update, error) {
		return state.Update{"x": 1}, nil
	}))
	_ = b.AddNode("B", graph.Updater(func(_ context.Context, s state.State) (state.Update, error) {
		return state.Update{"y": s.Int("x") + 1}, nil
	}))
	_ = b.AddEdge("A", "B")
	_ = b.AddEdge("B", graph.END)
	_ = b.SetEntryPoint("A")

	g, err := b.Compile()
	if err != nil {
		fmt.Println(err)
		return
	}

	final, err := g.Invoke(context.Background(), nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(final.Int("x"), final.Int("y"))
	// Output: 1 2
}

func Example_retryCeiling() {
	schema := state.MustSchema(
		state.Appended("attempts", state.String()),
	)

	b := graph.New(schema)
	_ = b.AddNode("retriever", graph.Updater(func(context.Context, state.State) (state.Update, error) {
		return state.Update{"attempts": "miss"}, nil
	}))
	_ = b.AddConditionalEdges("retriever", func(state.State) string { return "retry" }, map[string]string{
		"retry": "retriever",
		"done":  graph.END,
	})
	_ = b.SetEntryPoint("retriever")

	g, err := b.Compile(graph.WithRetryCeiling(3))
	if err != nil {
		fmt.Println(err)
		return
	}

	final, err := g.Invoke(context.Background(), nil)
	fmt.Println(err)
	fmt.Println(final.Len("attempts"))
	// Output:
	// node "retriever" exceeded its retry budget: visit 4 with ceiling 3
	// 3
}
