package demos

import (
	"fmt"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/registry"
	"github.com/aretw0/stategraph/pkg/state"
)

// Definition describes one demo graph.
type Definition struct {
	Name        string
	Description string
	Example     state.Update
	Build       func(deps Deps, opts ...graph.Option) (*graph.Compiled, error)
}

// Definitions lists every demo in display order.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        "linear",
			Description: "A writes x, B writes y, then END.",
			Example:     state.Update{},
			Build:       Linear,
		},
		{
			Name:        "lunch",
			Description: "Routes lunch questions to the cafeteria with a Command; anything else ends.",
			Example:     state.Update{"messages": []string{"점심 뭐 먹지?"}},
			Build:       Lunch,
		},
		{
			Name:        "supervisor",
			Description: "A supervisor dispatches requests to cafeteria and schedule workers until all are answered.",
			Example:     state.Update{"messages": []string{"점심 메뉴 알려줘", "오늘 일정 알려줘"}},
			Build:       Supervisor,
		},
		{
			Name:        "policy",
			Description: "Retrieves policy clauses until the summary has enough evidence, then derives actions, checks compliance and translates the report.",
			Example:     state.Update{"query": "보안 정책 주요 조항"},
			Build:       Policy,
		},
		{
			Name:        "sqlrepair",
			Description: "Generates SQL for a question and repairs it until it runs.",
			Example:     state.Update{"question": "가장 많이 주문한 고객 3명은?"},
			Build: func(deps Deps, opts ...graph.Option) (*graph.Compiled, error) {
				return SQLRepair(deps, StubDatabase{}, opts...)
			},
		},
		{
			Name:        "check",
			Description: "Validates input_data and branches to a success or failure report.",
			Example:     state.Update{"input_data": Passphrase},
			Build:       Check,
		},
	}
}

// Register compiles every demo and adds it to reg. optsFor supplies the
// compile options of each graph (ceiling, hooks, logger); it may be nil.
func Register(reg *registry.Registry, deps Deps, optsFor func(name string) []graph.Option) error {
	for _, d := range Definitions() {
		opts := []graph.Option{graph.WithName(d.Name)}
		if optsFor != nil {
			opts = append(opts, optsFor(d.Name)...)
		}
		g, err := d.Build(deps, opts...)
		if err != nil {
			return fmt.Errorf("demo %s: %w", d.Name, err)
		}
		reg.Register(registry.Entry{
			Name:        d.Name,
			Description: d.Description,
			Graph:       g,
			Example:     d.Example,
		})
	}
	return nil
}
