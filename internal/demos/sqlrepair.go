package demos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// Database runs read-only SQL.
type Database interface {
	Query(ctx context.Context, sql string) ([]string, error)
}

// StubDatabase accepts a single well-formed SELECT over the orders table.
type StubDatabase struct{}

// Query implements Database.
func (StubDatabase) Query(_ context.Context, sql string) ([]string, error) {
	upper := strings.ToUpper(sql)
	if !strings.HasPrefix(upper, "SELECT") || !strings.Contains(upper, " FROM ") {
		return nil, errors.New("syntax error at or near \"FORM\"")
	}
	if !strings.Contains(upper, "ORDERS") {
		return nil, nil
	}
	return []string{"kim, 420000", "lee, 310000", "park, 150000"}, nil
}

const ordersTable = "orders(id INTEGER, name TEXT, total INTEGER, created_at DATE)"

// Verdicts produced by validate_sql_query.
const (
	verdictPass    = "PASS"
	verdictError   = "QUERY ERROR"
	verdictUnknown = "UNKNOWN MEANING"
)

// SQLRepair generates SQL for a question, runs it and repairs the query until
// it executes and returns rows. Each repair goes around the execute loop once,
// so the retry ceiling bounds the number of attempts.
func SQLRepair(deps Deps, db Database, opts ...graph.Option) (*graph.Compiled, error) {
	schema, err := state.NewSchema(
		state.Replaced("question", state.String()),
		state.Replaced("sql_query", state.String()),
		state.Appended("context", state.String()),
		state.Replaced("rows", state.Slice(state.String())),
		state.Replaced("binary_score", state.String()),
		state.Replaced("answer", state.String()),
	)
	if err != nil {
		return nil, err
	}

	question := func(_ context.Context, s state.State) (graph.Result, error) {
		q := strings.TrimSpace(s.String("question"))
		if q == "" {
			return nil, errors.New("question is empty")
		}
		return state.Update{"question": q}, nil
	}
	tableInfo := func(context.Context, state.State) (graph.Result, error) {
		return state.Update{"context": "table " + ordersTable}, nil
	}
	generate := func(ctx context.Context, s state.State) (graph.Result, error) {
		sql, err := deps.Completer.Complete(ctx, "sql:"+s.String("question"))
		if err != nil {
			return nil, fmt.Errorf("generate sql: %w", err)
		}
		return state.Update{"sql_query": sql}, nil
	}
	execute := func(ctx context.Context, s state.State) (graph.Result, error) {
		rows, err := db.Query(ctx, s.String("sql_query"))
		if err != nil {
			return state.Update{"rows": []string{}, "context": "ERROR: " + err.Error()}, nil
		}
		return state.Update{"rows": rows, "context": fmt.Sprintf("%d rows", len(rows))}, nil
	}
	validate := func(_ context.Context, s state.State) (graph.Result, error) {
		last, _ := s.Last("context")
		note, _ := last.(string)
		switch {
		case strings.HasPrefix(note, "ERROR"):
			return state.Update{"binary_score": verdictError}, nil
		case s.Len("rows") == 0:
			return state.Update{"binary_score": verdictUnknown}, nil
		default:
			return state.Update{"binary_score": verdictPass}, nil
		}
	}
	rewriteQuery := func(ctx context.Context, s state.State) (graph.Result, error) {
		fixed, err := deps.Completer.Complete(ctx, "sqlfix:"+s.String("sql_query"))
		if err != nil {
			return nil, fmt.Errorf("rewrite sql: %w", err)
		}
		return state.Update{"sql_query": fixed}, nil
	}
	rewriteQuestion := func(_ context.Context, s state.State) (graph.Result, error) {
		return state.Update{"question": s.String("question") + " (orders 테이블 기준)"}, nil
	}
	answer := func(_ context.Context, s state.State) (graph.Result, error) {
		return state.Update{"answer": fmt.Sprintf("%s\n%s", s.String("sql_query"), strings.Join(s.Strings("rows"), "\n"))}, nil
	}

	b := graph.New(schema)
	_ = b.AddNode("question", question)
	_ = b.AddNode("get_table_info", tableInfo)
	_ = b.AddNode("generate_sql_query", generate)
	_ = b.AddNode("execute_sql_query", execute)
	_ = b.AddNode("validate_sql_query", validate)
	_ = b.AddNode("rewrite_query", rewriteQuery)
	_ = b.AddNode("rewrite_question", rewriteQuestion)
	_ = b.AddNode("answer", answer)

	_ = b.AddEdge("question", "get_table_info")
	_ = b.AddEdge("get_table_info", "generate_sql_query")
	_ = b.AddEdge("generate_sql_query", "execute_sql_query")
	_ = b.AddEdge("execute_sql_query", "validate_sql_query")
	_ = b.AddConditionalEdges("validate_sql_query", func(s state.State) string {
		return s.String("binary_score")
	}, map[string]string{
		verdictError:   "rewrite_query",
		verdictUnknown: "rewrite_question",
		verdictPass:    "answer",
	})
	_ = b.AddEdge("rewrite_query", "execute_sql_query")
	_ = b.AddEdge("rewrite_question", "rewrite_query")
	_ = b.AddEdge("answer", graph.END)
	_ = b.SetEntryPoint("question")

	return b.Compile(opts...)
}
