// Package graph builds and runs stateful workflow graphs.
//
// A graph is a set of named nodes over a state.Schema. Each node reads the
// current state and returns a partial update (or a Command that also names the
// next node). Nodes are connected by static edges and conditional tables:
//
//	g := graph.New(schema)
//	g.AddNode("retriever", retrieve)
//	g.AddNode("summarizer", summarize)
//	g.AddEdge("retriever", "summarizer")
//	g.AddConditionalEdges("summarizer", needsMore, map[string]string{
//	    "retry": "retriever",
//	    "done":  graph.END,
//	})
//	g.SetEntryPoint("retriever")
//
//	compiled, err := g.Compile(graph.WithRetryCeiling(3))
//	final, err := compiled.Invoke(ctx, state.Update{"question": q})
//
// Compile checks the whole definition at once and reports every problem in a
// single *DefinitionError. The resulting Compiled graph is immutable and can be
// invoked concurrently.
//
// Routing after a node follows a fixed precedence: a Command's Goto, then the
// node's conditional table, then its static edge. Each node may be visited at
// most RetryCeiling times per invocation, which bounds every cycle.
//
// Run-time failures are typed: *RoutingError, *NodeExecutionError and
// *RetryBudgetError all carry the last good state (see StateOf).
package graph
