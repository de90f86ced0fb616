package tui

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/muesli/termenv"
)

// TraceHooks prints one colored line per node and routing decision.
func TraceHooks(w io.Writer) domain.LifecycleHooks {
	out := termenv.NewOutput(w)
	node := func(s string) termenv.Style { return out.String(s).Foreground(out.Color("#a78bfa")).Bold() }
	dim := func(s string) termenv.Style { return out.String(s).Faint() }

	return domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				fmt.Fprintf(w, "✗ %s %s\n", node(e.NodeID), out.String(e.Err.Error()).Foreground(out.Color("#fb7185")))
				return
			}
			fmt.Fprintf(w, "● %s %s\n", node(e.NodeID), dim(fmt.Sprintf("step=%d visit=%d %s", e.Step, e.Visit, e.Duration)))
			if !e.Diff.IsEmpty() {
				for k, v := range e.Diff.Changed {
					fmt.Fprintf(w, "    %s = %v\n", k, v)
				}
				for k, v := range e.Diff.Appended {
					fmt.Fprintf(w, "    %s += %v\n", k, v)
				}
			}
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			label := e.Via
			if e.Key != "" {
				label = fmt.Sprintf("%s[%s]", e.Via, e.Key)
			}
			fmt.Fprintf(w, "  └─▶ %s %s\n", e.To, dim(label))
		},
	}
}
