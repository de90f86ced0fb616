package demos

import (
	"context"
	"strings"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// Menu is the cafeteria's weekly menu.
var Menu = map[string]string{
	"월": "비빔밥, 된장국",
	"화": "제육볶음, 미역국",
	"수": "돈까스, 우동",
	"목": "김치찌개, 계란말이",
	"금": "카레라이스, 샐러드",
}

func menuText() string {
	var sb strings.Builder
	for _, day := range []string{"월", "화", "수", "목", "금"} {
		sb.WriteString(day + ": " + Menu[day] + "\n")
	}
	return strings.TrimSpace(sb.String())
}

// Lunch routes lunch questions to the cafeteria and ends on anything else.
func Lunch(_ Deps, opts ...graph.Option) (*graph.Compiled, error) {
	schema, err := state.NewSchema(
		state.Appended("messages", state.String()),
	)
	if err != nil {
		return nil, err
	}

	router := func(_ context.Context, s state.State) (graph.Result, error) {
		last, _ := s.Last("messages")
		msg, _ := last.(string)
		if strings.Contains(msg, "점심") || strings.Contains(msg, "식당") {
			return graph.Goto("cafeteria"), nil
		}
		return graph.Goto(graph.END), nil
	}
	cafeteria := func(context.Context, state.State) (graph.Result, error) {
		return state.Update{"messages": "이번 주 식단입니다.\n" + menuText()}, nil
	}

	b := graph.New(schema)
	_ = b.AddNode("router", router, graph.Destinations("cafeteria", graph.END))
	_ = b.AddNode("cafeteria", cafeteria, graph.Writes("messages"))
	_ = b.AddEdge("cafeteria", graph.END)
	_ = b.SetEntryPoint("router")

	return b.Compile(opts...)
}
