/*
Package stategraph is a stateful workflow graph engine.

A workflow is a set of named nodes that read a shared, typed state and return
partial updates. A schema declares every state field together with its merge
policy: REPLACE overwrites, APPEND concatenates. Nodes are wired with static
edges and conditional routing tables, and a node may also return a Command that
carries an update and names the next node directly.

# Packages

  - pkg/state: the schema, merge policies and immutable state values.
  - pkg/graph: the builder, compile-time validation, the executor and its typed errors.
  - pkg/registry: named graphs for hosts (CLI, HTTP, MCP).
  - pkg/adapters: checkpoint stores (memory, file, redis) and the HTTP and MCP hosts.
  - pkg/observability: Prometheus metrics and structured logging hooks.

# Usage

	schema := state.MustSchema(
		state.Replaced("x", state.Int()),
		state.Replaced("y", state.Int()),
	)

	b := graph.New(schema)
	b.AddNode("A", graph.Updater(func(ctx context.Context, s state.State) (state.Update, error) {
		return state.Update{"x": 1}, nil
	}))
	b.AddNode("B", graph.Updater(func(ctx context.Context, s state.State) (state.Update, error) {
		return state.Update{"y": 2}, nil
	}))
	b.AddEdge("A", "B")
	b.AddEdge("B", graph.END)
	b.SetEntryPoint("A")

	g, err := b.Compile()
	if err != nil {
		log.Fatal(err) // *graph.DefinitionError lists every problem
	}
	final, err := g.Invoke(ctx, nil) // {x: 1, y: 2}

Every node may be visited at most RetryCeiling times per invocation (3 by
default), so cycles such as retrieve-until-enough-evidence always terminate.

# Durable runs

With a checkpoint store the executor saves the state, visit counters and next
node after every step. A failed run can be resumed from the step that failed:

	info, err := g.Run(ctx, input, graph.WithCheckpointer(store))
	...
	info, err = g.Resume(ctx, store, info.RunID)
*/
package stategraph
