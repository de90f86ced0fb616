package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
	EventRoute     EventType = "route"
	EventInvokeEnd EventType = "invoke_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Graph     string    `json:"graph,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}

// NodeEvent represents entry into or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Step     int           `json:"step"`
	Visit    int           `json:"visit"`
	Duration time.Duration `json:"duration,omitempty"` // Leave only
	Diff     *StateDiff    `json:"diff,omitempty"`     // Leave only
	Err      error         `json:"-"`                  // Leave only, set when the node failed
}

// RouteEvent records how the next node was chosen.
type RouteEvent struct {
	EventBase
	From string `json:"from"`
	To   string `json:"to"`
	Step int    `json:"step"`
	Via  string `json:"via"`           // "command", "conditional" or "edge"
	Key  string `json:"key,omitempty"` // decision key for conditional routing
}

// InvokeEvent summarizes a finished invocation.
type InvokeEvent struct {
	EventBase
	Steps    int           `json:"steps"`
	Status   RunStatus     `json:"status"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Every hook is optional. Hooks run synchronously on the invocation's goroutine.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnRoute     func(context.Context, *RouteEvent)
	OnInvokeEnd func(context.Context, *InvokeEvent)
}

// Merge combines several hook sets; each callback fans out in order.
func (h LifecycleHooks) Merge(others ...LifecycleHooks) LifecycleHooks {
	all := append([]LifecycleHooks{h}, others...)
	var out LifecycleHooks

	var enter, leave []func(context.Context, *NodeEvent)
	var route []func(context.Context, *RouteEvent)
	var end []func(context.Context, *InvokeEvent)
	for _, x := range all {
		if x.OnNodeEnter != nil {
			enter = append(enter, x.OnNodeEnter)
		}
		if x.OnNodeLeave != nil {
			leave = append(leave, x.OnNodeLeave)
		}
		if x.OnRoute != nil {
			route = append(route, x.OnRoute)
		}
		if x.OnInvokeEnd != nil {
			end = append(end, x.OnInvokeEnd)
		}
	}

	if len(enter) > 0 {
		out.OnNodeEnter = func(ctx context.Context, e *NodeEvent) {
			for _, fn := range enter {
				fn(ctx, e)
			}
		}
	}
	if len(leave) > 0 {
		out.OnNodeLeave = func(ctx context.Context, e *NodeEvent) {
			for _, fn := range leave {
				fn(ctx, e)
			}
		}
	}
	if len(route) > 0 {
		out.OnRoute = func(ctx context.Context, e *RouteEvent) {
			for _, fn := range route {
				fn(ctx, e)
			}
		}
	}
	if len(end) > 0 {
		out.OnInvokeEnd = func(ctx context.Context, e *InvokeEvent) {
			for _, fn := range end {
				fn(ctx, e)
			}
		}
	}
	return out
}
