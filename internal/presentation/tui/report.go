package tui

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/stategraph/pkg/graph"
)

// Report builds the markdown summary of a run: outcome, path and final state.
func Report(info *graph.RunInfo, runErr error) string {
	var sb strings.Builder

	title := info.Graph
	if title == "" {
		title = "graph"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "- **Run:** `%s`\n", info.RunID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", info.Status)
	fmt.Fprintf(&sb, "- **Steps:** %d\n", info.Steps)
	if len(info.History) > 0 {
		fmt.Fprintf(&sb, "- **Path:** %s\n", strings.Join(info.History, " → "))
	}

	if runErr != nil {
		fmt.Fprintf(&sb, "\n> **Error:** %s\n", FailureMessage(runErr))
	}

	values := info.State.Snapshot()
	if len(values) > 0 {
		sb.WriteString("\n## State\n\n| Field | Value |\n|---|---|\n")
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "| %s | %s |\n", k, cell(values[k]))
		}
	}

	if len(info.Visits) > 0 {
		sb.WriteString("\n## Visits\n\n| Node | Visits |\n|---|---|\n")
		nodes := make([]string, 0, len(info.Visits))
		for n := range info.Visits {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)
		for _, n := range nodes {
			fmt.Fprintf(&sb, "| %s | %d |\n", n, info.Visits[n])
		}
	}
	return sb.String()
}

// FailureMessage translates run-time errors into a message for people.
func FailureMessage(err error) string {
	var budget *graph.RetryBudgetError
	if errors.As(err, &budget) {
		return fmt.Sprintf("could not complete after %d attempts at %q", budget.Ceiling, budget.Node)
	}
	return err.Error()
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(b)
		}
	}
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
