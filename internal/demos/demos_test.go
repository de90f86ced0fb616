package demos_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/stategraph/internal/demos"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/registry"
	"github.com/aretw0/stategraph/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	g, err := demos.Linear(demos.StubDeps())
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, final.Snapshot())
}

func TestLunch(t *testing.T) {
	g, err := demos.Lunch(demos.StubDeps())
	require.NoError(t, err)

	t.Run("Lunch Question", func(t *testing.T) {
		info, err := g.Run(context.Background(), state.Update{"messages": "점심 뭐 먹지?"})
		require.NoError(t, err)
		assert.Equal(t, []string{"router", "cafeteria"}, info.History)
		last, _ := info.State.Last("messages")
		assert.Contains(t, last, "비빔밥")
	})

	t.Run("Anything Else", func(t *testing.T) {
		info, err := g.Run(context.Background(), state.Update{"messages": "안녕"})
		require.NoError(t, err)
		assert.Equal(t, []string{"router"}, info.History)
		assert.Equal(t, 1, info.State.Len("messages"))
	})
}

func TestSupervisor(t *testing.T) {
	g, err := demos.Supervisor(demos.StubDeps())
	require.NoError(t, err)

	info, err := g.Run(context.Background(), state.Update{
		"messages": []string{"점심 뭐 먹지?", "오늘 일정 알려줘"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cafeteria", "schedule"}, info.State.Strings("answered"))
	assert.Equal(t, 3, info.Visits["supervisor"])
	assert.Equal(t, graph.END, info.State.String("next"))
}

func TestPolicy(t *testing.T) {
	g, err := demos.Policy(demos.StubDeps())
	require.NoError(t, err)

	info, err := g.Run(context.Background(), state.Update{"query": "보안 정책"})
	require.NoError(t, err)

	// Two clauses are too thin, so the retriever widens the search once.
	assert.Equal(t, 2, info.Visits["retriever"])
	assert.Equal(t, 4, info.State.Len("docs"))
	assert.Len(t, strings.Split(info.State.String("summary"), "\n"), 4)
	assert.Len(t, info.State.List("actions"), 4)
	assert.Contains(t, info.State.String("compliance"), "준법감시팀")
	assert.True(t, strings.HasPrefix(info.State.String("report_en"), "[EN] [정책 요약]"))
	assert.Contains(t, info.State.String("report_ko"), "제9조")
}

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(context.Context, string, int) ([]string, error) {
	return nil, errors.New("index offline")
}

func TestPolicy_GivesUpAfterRetries(t *testing.T) {
	deps := demos.StubDeps()
	deps.Retriever = emptyRetriever{}
	g, err := demos.Policy(deps)
	require.NoError(t, err)

	info, err := g.Run(context.Background(), state.Update{"query": "보안 정책"})
	require.NoError(t, err)
	assert.Equal(t, 3, info.Visits["retriever"])
	assert.Equal(t, "문서를 찾을 수 없습니다.", info.State.String("summary"))
	assert.Contains(t, info.State.String("compliance"), "액션아이템이 없어")
}

func TestPolicy_LowCeilingFails(t *testing.T) {
	deps := demos.StubDeps()
	deps.Retriever = emptyRetriever{}
	g, err := demos.Policy(deps, graph.WithRetryCeiling(2))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), state.Update{"query": "보안 정책"})
	var budgetErr *graph.RetryBudgetError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "retriever", budgetErr.Node)
}

func TestSQLRepair(t *testing.T) {
	g, err := demos.SQLRepair(demos.StubDeps(), demos.StubDatabase{})
	require.NoError(t, err)

	info, err := g.Run(context.Background(), state.Update{"question": "가장 많이 주문한 고객은?"})
	require.NoError(t, err)
	assert.Equal(t, 2, info.Visits["execute_sql_query"])
	assert.Equal(t, 1, info.Visits["rewrite_query"])
	assert.Equal(t, "PASS", info.State.String("binary_score"))
	assert.Contains(t, info.State.String("answer"), "FROM orders")
	assert.Contains(t, info.State.String("answer"), "kim, 420000")
}

func TestSQLRepair_EmptyQuestion(t *testing.T) {
	g, err := demos.SQLRepair(demos.StubDeps(), demos.StubDatabase{})
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), state.Update{"question": "  "})
	var nodeErr *graph.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "question", nodeErr.Node)
}

func TestCheck(t *testing.T) {
	g, err := demos.Check(demos.StubDeps())
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		history []string
		want    string
	}{
		{"Success", demos.Passphrase, []string{"node1", "node2", "node3", "final_success"}, "✅"},
		{"Failure", "hello", []string{"node1", "node2", "final_failure"}, "❌"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := g.Run(context.Background(), state.Update{"input_data": tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.history, info.History)
			assert.True(t, strings.HasPrefix(info.State.String("final_result"), tt.want))
		})
	}
}

func TestRegister(t *testing.T) {
	reg := registry.NewRegistry()
	var asked []string
	err := demos.Register(reg, demos.StubDeps(), func(name string) []graph.Option {
		asked = append(asked, name)
		return []graph.Option{graph.WithRetryCeiling(5)}
	})
	require.NoError(t, err)

	entries := reg.List()
	require.Len(t, entries, len(demos.Definitions()))
	assert.Len(t, asked, len(entries))

	for _, e := range entries {
		assert.Equal(t, e.Name, e.Graph.Name())
		assert.Equal(t, 5, e.Graph.RetryCeiling())
		assert.NotEmpty(t, e.Description)

		_, err := reg.Run(context.Background(), e.Name, e.Example)
		assert.NoError(t, err, e.Name)
	}
}
