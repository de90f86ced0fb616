package demos

import (
	"context"
	"fmt"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// Passphrase is the input node2 accepts.
const Passphrase = "장우승"

// Check validates input_data in node2 and branches to node3 or final_failure.
func Check(_ Deps, opts ...graph.Option) (*graph.Compiled, error) {
	schema, err := state.ParseSchema(map[string]string{
		"input_data":    "string",
		"node1_result":  "string",
		"node2_result":  "string",
		"node2_success": "bool",
		"node3_result":  "string",
		"final_result":  "string",
	})
	if err != nil {
		return nil, err
	}

	node1 := func(context.Context, state.State) (graph.Result, error) {
		return state.Update{"node1_result": "1 + 1 = 2"}, nil
	}
	node2 := func(_ context.Context, s state.State) (graph.Result, error) {
		text := s.String("input_data")
		if text == Passphrase {
			return state.Update{"node2_result": "성공: " + text, "node2_success": true}, nil
		}
		return state.Update{
			"node2_result":  fmt.Sprintf("실패: '%s'는 %s이 아닙니다", text, Passphrase),
			"node2_success": false,
		}, nil
	}
	node3 := func(context.Context, state.State) (graph.Result, error) {
		return state.Update{"node3_result": "땡땡땡"}, nil
	}
	finalSuccess := func(_ context.Context, s state.State) (graph.Result, error) {
		return state.Update{"final_result": fmt.Sprintf("✅ 워크플로우 성공!\n- 1번 노드: %s\n- 2번 노드: %s\n- 3번 노드: %s",
			s.String("node1_result"), s.String("node2_result"), s.String("node3_result"))}, nil
	}
	finalFailure := func(_ context.Context, s state.State) (graph.Result, error) {
		return state.Update{"final_result": fmt.Sprintf("❌ 워크플로우 실패!\n- 1번 노드: %s\n- 2번 노드: %s\n- 3번 노드: 실행되지 않음 (2번 노드 실패)",
			s.String("node1_result"), s.String("node2_result"))}, nil
	}

	b := graph.New(schema)
	_ = b.AddNode("node1", node1)
	_ = b.AddNode("node2", node2)
	_ = b.AddNode("node3", node3)
	_ = b.AddNode("final_success", finalSuccess)
	_ = b.AddNode("final_failure", finalFailure)
	_ = b.AddEdge("node1", "node2")
	_ = b.AddConditionalEdges("node2", func(s state.State) string {
		if s.Bool("node2_success") {
			return "node3"
		}
		return "final_failure"
	}, map[string]string{
		"node3":         "node3",
		"final_failure": "final_failure",
	})
	_ = b.AddEdge("node3", "final_success")
	_ = b.AddEdge("final_success", graph.END)
	_ = b.AddEdge("final_failure", graph.END)
	_ = b.SetEntryPoint("node1")

	return b.Compile(opts...)
}
