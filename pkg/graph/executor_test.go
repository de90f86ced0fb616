package graph_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/stategraph/pkg/adapters/memory"
	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emit(u state.Update) graph.NodeFunc {
	return func(context.Context, state.State) (graph.Result, error) {
		return u, nil
	}
}

func compile(t *testing.T, b *graph.Builder, opts ...graph.Option) *graph.Compiled {
	t.Helper()
	g, err := b.Compile(opts...)
	require.NoError(t, err)
	return g
}

func TestInvoke_Linear(t *testing.T) {
	b := graph.New(xySchema())
	require.NoError(t, b.AddNode("A", emit(state.Update{"x": 1})))
	require.NoError(t, b.AddNode("B", emit(state.Update{"y": 2})))
	require.NoError(t, b.AddEdge("A", "B"))
	require.NoError(t, b.AddEdge("B", graph.END))
	require.NoError(t, b.SetEntryPoint("A"))
	g := compile(t, b)

	info, err := g.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"x": 1, "y": 2}, info.State.Snapshot())
	assert.Equal(t, 2, info.Steps)
	assert.Equal(t, []string{"A", "B"}, info.History)
	assert.Equal(t, domain.StatusCompleted, info.Status)
	assert.NotEmpty(t, info.RunID)
}

func lunchGraph(t *testing.T) *graph.Compiled {
	t.Helper()
	schema := state.MustSchema(
		state.Appended("messages", state.String()),
	)
	router := func(_ context.Context, s state.State) (graph.Result, error) {
		last, _ := s.Last("messages")
		msg, _ := last.(string)
		if strings.Contains(msg, "점심") || strings.Contains(msg, "식당") {
			return graph.Goto("cafeteria"), nil
		}
		return graph.Goto(graph.END), nil
	}

	b := graph.New(schema)
	require.NoError(t, b.AddNode("router", router, graph.Destinations("cafeteria", graph.END)))
	require.NoError(t, b.AddNode("cafeteria", emit(state.Update{"messages": "오늘의 메뉴는 비빔밥입니다"})))
	require.NoError(t, b.AddEdge("cafeteria", graph.END))
	require.NoError(t, b.SetEntryPoint("router"))
	return compile(t, b)
}

func TestInvoke_CommandRouting(t *testing.T) {
	g := lunchGraph(t)

	t.Run("Lunch Question Goes To Cafeteria", func(t *testing.T) {
		info, err := g.Run(context.Background(), state.Update{"messages": []string{"점심 뭐 먹지?"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"router", "cafeteria"}, info.History)
		assert.Equal(t, 2, info.State.Len("messages"))
	})

	t.Run("Greeting Ends Immediately", func(t *testing.T) {
		info, err := g.Run(context.Background(), state.Update{"messages": []string{"안녕"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"router"}, info.History)
		assert.Equal(t, []string{"안녕"}, info.State.Strings("messages"))
	})
}

func TestInvoke_CommandOverridesEdges(t *testing.T) {
	schema := state.MustSchema(state.Appended("path", state.String()))
	b := graph.New(schema)

	require.NoError(t, b.AddNode("start", func(context.Context, state.State) (graph.Result, error) {
		return graph.Command{Update: state.Update{"path": "start"}, Goto: "jump"}, nil
	}))
	require.NoError(t, b.AddNode("static", emit(state.Update{"path": "static"})))
	require.NoError(t, b.AddNode("jump", emit(state.Update{"path": "jump"})))
	require.NoError(t, b.AddEdge("start", "static"))
	require.NoError(t, b.AddEdge("static", "jump"))
	require.NoError(t, b.AddEdge("jump", graph.END))
	require.NoError(t, b.SetEntryPoint("start"))
	g := compile(t, b)

	final, err := g.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "jump"}, final.Strings("path"))
}

func TestInvoke_BoundedRetry(t *testing.T) {
	schema := state.MustSchema(
		state.Replaced("question", state.String()),
		state.Appended("docs", state.String()),
		state.Replaced("needs_more_evidence", state.Bool()),
		state.Replaced("summary", state.String()),
	)

	var retrieverVisits int
	retriever := func(_ context.Context, s state.State) (graph.Result, error) {
		retrieverVisits++
		return state.Update{"docs": fmt.Sprintf("doc-%d", retrieverVisits)}, nil
	}
	summarizer := func(_ context.Context, s state.State) (graph.Result, error) {
		enough := s.Len("docs") >= 3
		return state.Update{"needs_more_evidence": !enough, "summary": strings.Join(s.Strings("docs"), ",")}, nil
	}
	decide := func(s state.State) string {
		if s.Bool("needs_more_evidence") {
			return "retry"
		}
		return "done"
	}

	b := graph.New(schema)
	require.NoError(t, b.AddNode("retriever", retriever))
	require.NoError(t, b.AddNode("summarizer", summarizer))
	require.NoError(t, b.AddEdge("retriever", "summarizer"))
	require.NoError(t, b.AddConditionalEdges("summarizer", decide, map[string]string{
		"retry": "retriever",
		"done":  graph.END,
	}))
	require.NoError(t, b.SetEntryPoint("retriever"))
	g := compile(t, b, graph.WithRetryCeiling(3))

	info, err := g.Run(context.Background(), state.Update{"question": "환불 규정은?"})
	require.NoError(t, err)

	assert.Equal(t, 3, retrieverVisits)
	assert.Equal(t, 3, info.Visits["retriever"])
	assert.Equal(t, 3, info.Visits["summarizer"])
	assert.Equal(t, "doc-1,doc-2,doc-3", info.State.String("summary"))
	assert.False(t, info.State.Bool("needs_more_evidence"))
}

func TestInvoke_RetryBudgetExceeded(t *testing.T) {
	schema := state.MustSchema(state.Replaced("count", state.Int()))
	b := graph.New(schema)
	require.NoError(t, b.AddNode("loop", func(_ context.Context, s state.State) (graph.Result, error) {
		return state.Update{"count": s.Int("count") + 1}, nil
	}))
	require.NoError(t, b.AddConditionalEdges("loop", func(state.State) string { return "again" }, map[string]string{
		"again": "loop",
		"stop":  graph.END,
	}))
	require.NoError(t, b.SetEntryPoint("loop"))
	g := compile(t, b)

	final, err := g.Invoke(context.Background(), nil)
	require.Error(t, err)

	var budgetErr *graph.RetryBudgetError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "loop", budgetErr.Node)
	assert.Equal(t, graph.DefaultRetryCeiling, budgetErr.Ceiling)
	assert.Equal(t, 4, budgetErr.Visits)
	assert.Equal(t, 3, final.Int("count"))

	carried, ok := graph.StateOf(err)
	require.True(t, ok)
	assert.Equal(t, 3, carried.Int("count"))

	// A per-invocation ceiling overrides the compiled one.
	_, err = g.Invoke(context.Background(), nil, graph.WithRetryCeiling(1))
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 1, budgetErr.Ceiling)
}

func TestInvoke_AppendAccumulates(t *testing.T) {
	schema := state.MustSchema(state.Appended("docs", state.String()))
	b := graph.New(schema)
	require.NoError(t, b.AddNode("n1", emit(state.Update{"docs": []string{"d1"}})))
	require.NoError(t, b.AddNode("n2", emit(state.Update{"docs": []string{"d2"}})))
	require.NoError(t, b.AddNode("n3", emit(state.Update{"docs": []string{"d3"}})))
	require.NoError(t, b.AddEdge("n1", "n2"))
	require.NoError(t, b.AddEdge("n2", "n3"))
	require.NoError(t, b.AddEdge("n3", graph.END))
	require.NoError(t, b.SetEntryPoint("n1"))
	g := compile(t, b)

	final, err := g.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, final.Strings("docs"))
}

func TestInvoke_RoutingError(t *testing.T) {
	schema := state.MustSchema(state.Appended("log", state.String()))

	t.Run("Unmapped Decision Key", func(t *testing.T) {
		b := graph.New(schema)
		require.NoError(t, b.AddNode("a", emit(state.Update{"log": "a"})))
		require.NoError(t, b.AddNode("b", emit(state.Update{"log": "b"})))
		require.NoError(t, b.AddConditionalEdges("a", func(state.State) string { return "재검색" }, map[string]string{
			"next": "b",
		}))
		require.NoError(t, b.AddEdge("b", graph.END))
		require.NoError(t, b.SetEntryPoint("a"))
		g := compile(t, b)

		final, err := g.Invoke(context.Background(), nil)
		var routeErr *graph.RoutingError
		require.ErrorAs(t, err, &routeErr)
		assert.Equal(t, "a", routeErr.Node)
		assert.Equal(t, "재검색", routeErr.Key)
		// Only the routing node's own update was merged.
		assert.Equal(t, []string{"a"}, final.Strings("log"))
	})

	t.Run("Unknown Command Target", func(t *testing.T) {
		b := graph.New(schema)
		require.NoError(t, b.AddNode("a", func(context.Context, state.State) (graph.Result, error) {
			return graph.Goto("ghost"), nil
		}, graph.Destinations(graph.END)))
		require.NoError(t, b.SetEntryPoint("a"))
		g := compile(t, b)

		_, err := g.Invoke(context.Background(), nil)
		var routeErr *graph.RoutingError
		require.ErrorAs(t, err, &routeErr)
		assert.Equal(t, "ghost", routeErr.Goto)
	})
}

func TestInvoke_NodeFailures(t *testing.T) {
	schema := state.MustSchema(
		state.Replaced("x", state.Int()),
		state.Appended("log", state.String()),
	)
	boom := errors.New("llm unavailable")

	build := func(t *testing.T, failing graph.NodeFunc) *graph.Compiled {
		b := graph.New(schema)
		require.NoError(t, b.AddNode("ok", emit(state.Update{"x": 1, "log": "ok"})))
		require.NoError(t, b.AddNode("bad", failing))
		require.NoError(t, b.AddEdge("ok", "bad"))
		require.NoError(t, b.AddEdge("bad", graph.END))
		require.NoError(t, b.SetEntryPoint("ok"))
		return compile(t, b)
	}

	assertLastGood := func(t *testing.T, err error) {
		var nodeErr *graph.NodeExecutionError
		require.ErrorAs(t, err, &nodeErr)
		assert.Equal(t, "bad", nodeErr.Node)
		assert.Equal(t, 1, nodeErr.Step)
		assert.Equal(t, 1, nodeErr.State.Int("x"))
		assert.Equal(t, []string{"ok"}, nodeErr.State.Strings("log"))
	}

	t.Run("Returned Error", func(t *testing.T) {
		g := build(t, func(context.Context, state.State) (graph.Result, error) {
			return state.Update{"x": 99}, boom
		})
		_, err := g.Invoke(context.Background(), nil)
		assertLastGood(t, err)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Panic", func(t *testing.T) {
		g := build(t, func(context.Context, state.State) (graph.Result, error) {
			panic("nil pointer somewhere")
		})
		_, err := g.Invoke(context.Background(), nil)
		assertLastGood(t, err)
		assert.ErrorIs(t, err, graph.ErrNodePanic)
	})

	t.Run("Invalid Update Type", func(t *testing.T) {
		g := build(t, emit(state.Update{"x": "not a number", "log": "bad"}))
		_, err := g.Invoke(context.Background(), nil)
		assertLastGood(t, err)
	})

	t.Run("Undeclared Field", func(t *testing.T) {
		g := build(t, emit(state.Update{"surprise": true}))
		_, err := g.Invoke(context.Background(), nil)
		var defErr *graph.DefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.ErrorIs(t, err, graph.ErrUndeclaredField)
	})
}

func TestInvoke_InvalidInput(t *testing.T) {
	b := graph.New(xySchema())
	require.NoError(t, b.AddNode("a", noop))
	require.NoError(t, b.AddEdge("a", graph.END))
	require.NoError(t, b.SetEntryPoint("a"))
	g := compile(t, b)

	_, err := g.Invoke(context.Background(), state.Update{"x": "one"})
	assert.ErrorIs(t, err, graph.ErrInvalidInput)
}

func TestInvoke_ContextCancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := graph.New(xySchema())
	require.NoError(t, b.AddNode("a", func(context.Context, state.State) (graph.Result, error) {
		cancel()
		return state.Update{"x": 1}, nil
	}))
	require.NoError(t, b.AddNode("b", emit(state.Update{"y": 2})))
	require.NoError(t, b.AddEdge("a", "b"))
	require.NoError(t, b.AddEdge("b", graph.END))
	require.NoError(t, b.SetEntryPoint("a"))
	g := compile(t, b)

	info, err := g.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	// The node that observed the cancellation still completed.
	assert.Equal(t, 1, info.State.Int("x"))
	assert.Equal(t, []string{"a"}, info.History)
}

func TestInvoke_LifecycleHooks(t *testing.T) {
	var events []string
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			events = append(events, "enter:"+e.NodeID)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			events = append(events, "leave:"+e.NodeID)
			assert.Contains(t, e.Diff.Keys(), "x")
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			events = append(events, fmt.Sprintf("route:%s->%s(%s)", e.From, e.To, e.Via))
		},
		OnInvokeEnd: func(_ context.Context, e *domain.InvokeEvent) {
			events = append(events, "end:"+string(e.Status))
		},
	}

	b := graph.New(xySchema())
	require.NoError(t, b.AddNode("a", emit(state.Update{"x": 1})))
	require.NoError(t, b.AddEdge("a", graph.END))
	require.NoError(t, b.SetEntryPoint("a"))
	g := compile(t, b, graph.WithLifecycleHooks(hooks))

	_, err := g.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"enter:a",
		"leave:a",
		"route:a->__end__(edge)",
		"end:completed",
	}, events)
}

func TestInvoke_ConcurrentInvocations(t *testing.T) {
	schema := state.MustSchema(
		state.Replaced("id", state.Int()),
		state.Appended("trace", state.Int()),
	)
	echo := func(_ context.Context, s state.State) (graph.Result, error) {
		return state.Update{"trace": s.Int("id")}, nil
	}

	b := graph.New(schema)
	require.NoError(t, b.AddNode("a", echo))
	require.NoError(t, b.AddNode("b", echo))
	require.NoError(t, b.AddEdge("a", "b"))
	require.NoError(t, b.AddEdge("b", graph.END))
	require.NoError(t, b.SetEntryPoint("a"))
	g := compile(t, b)

	var wg sync.WaitGroup
	results := make([]state.State, 32)
	errs := make([]error, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Invoke(context.Background(), state.Update{"id": i})
		}(i)
	}
	wg.Wait()

	for i, st := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []any{i, i}, st.List("trace"))
	}
}

func TestInvoke_DecisionPanic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	var ended *domain.InvokeEvent
	hooks := domain.LifecycleHooks{
		OnInvokeEnd: func(_ context.Context, e *domain.InvokeEvent) { ended = e },
	}

	b := graph.New(xySchema())
	require.NoError(t, b.AddNode("a", emit(state.Update{"x": 1})))
	require.NoError(t, b.AddConditionalEdges("a", func(state.State) string {
		var routes []string
		return routes[0]
	}, map[string]string{"done": graph.END}))
	require.NoError(t, b.SetEntryPoint("a"))
	g := compile(t, b, graph.WithName("panicky"))

	var (
		info *graph.RunInfo
		err  error
	)
	require.NotPanics(t, func() {
		info, err = g.Run(ctx, nil, graph.WithCheckpointer(store), graph.WithRunID("r1"), graph.WithLifecycleHooks(hooks))
	})

	var routeErr *graph.RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.ErrorIs(t, err, graph.ErrDecisionPanic)
	assert.Equal(t, "a", routeErr.Node)
	assert.Equal(t, 1, routeErr.State.Int("x"))
	assert.Equal(t, domain.StatusFailed, info.Status)

	cp, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, cp.Status)
	assert.Equal(t, "a", cp.Next)
	assert.Contains(t, cp.Error, "decision function panicked")

	require.NotNil(t, ended)
	assert.Equal(t, domain.StatusFailed, ended.Status)
}

func TestInvoke_NodesCannotMutateSharedValues(t *testing.T) {
	schema := state.MustSchema(
		state.Replaced("m", state.Any()),
		state.Appended("items", state.Any()),
	)
	input := map[string]any{"secret": "original"}

	b := graph.New(schema)
	require.NoError(t, b.AddNode("tamper", func(_ context.Context, s state.State) (graph.Result, error) {
		m, _ := s.Get("m")
		m.(map[string]any)["secret"] = "mutated"
		first, _ := s.Last("items")
		first.(map[string]any)["id"] = "mutated"
		s.Snapshot()["m"].(map[string]any)["secret"] = "mutated"
		return nil, errors.New("gave up")
	}))
	require.NoError(t, b.AddEdge("tamper", graph.END))
	require.NoError(t, b.SetEntryPoint("tamper"))
	g := compile(t, b)

	_, err := g.Invoke(context.Background(), state.Update{
		"m":     input,
		"items": map[string]any{"id": "1"},
	})

	var nodeErr *graph.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	m, _ := nodeErr.State.Get("m")
	assert.Equal(t, map[string]any{"secret": "original"}, m)
	assert.Equal(t, []any{map[string]any{"id": "1"}}, nodeErr.State.List("items"))
	assert.Equal(t, "original", input["secret"])
}
