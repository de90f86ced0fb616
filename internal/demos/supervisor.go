package demos

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// Schedule is the calendar served by the schedule worker.
var Schedule = []string{
	"10:00 주간 회의",
	"14:00 보안 점검 리뷰",
	"16:30 1:1 미팅",
}

// Supervisor lets a supervisor node dispatch the latest request to a worker
// (cafeteria or schedule) and finish once every worker has answered.
func Supervisor(deps Deps, opts ...graph.Option) (*graph.Compiled, error) {
	schema, err := state.NewSchema(
		state.Appended("messages", state.String()),
		state.Appended("answered", state.String()),
		state.Replaced("next", state.String()),
	)
	if err != nil {
		return nil, err
	}

	supervisor := func(ctx context.Context, s state.State) (graph.Result, error) {
		done := make(map[string]bool)
		for _, w := range s.Strings("answered") {
			done[w] = true
		}

		// Ask about every user message that still lacks an answer.
		for _, msg := range s.Strings("messages") {
			if strings.HasPrefix(msg, "[") {
				continue
			}
			worker, err := deps.Completer.Complete(ctx, "route:"+msg)
			if err != nil {
				return nil, fmt.Errorf("supervisor routing: %w", err)
			}
			if worker != "FINISH" && !done[worker] {
				return graph.Command{Update: state.Update{"next": worker}, Goto: worker}, nil
			}
		}
		return graph.Command{Update: state.Update{"next": graph.END}, Goto: graph.END}, nil
	}

	cafeteria := func(context.Context, state.State) (graph.Result, error) {
		return graph.Command{
			Update: state.Update{"messages": "[cafeteria] " + menuText(), "answered": "cafeteria"},
			Goto:   "supervisor",
		}, nil
	}
	schedule := func(context.Context, state.State) (graph.Result, error) {
		return graph.Command{
			Update: state.Update{"messages": "[schedule] " + strings.Join(Schedule, ", "), "answered": "schedule"},
			Goto:   "supervisor",
		}, nil
	}

	b := graph.New(schema)
	_ = b.AddNode("supervisor", supervisor, graph.Destinations("cafeteria", "schedule", graph.END))
	_ = b.AddNode("cafeteria", cafeteria, graph.Destinations("supervisor"))
	_ = b.AddNode("schedule", schedule, graph.Destinations("supervisor"))
	_ = b.SetEntryPoint("supervisor")

	return b.Compile(opts...)
}
