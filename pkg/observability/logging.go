package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/stategraph/pkg/domain"
)

// LoggingHooks logs every lifecycle event at Info level (failures at Error).
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.InfoContext(ctx, "node_enter",
				"run_id", e.RunID,
				"node_id", e.NodeID,
				"step", e.Step,
				"visit", e.Visit,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "node_leave",
					"run_id", e.RunID,
					"node_id", e.NodeID,
					"step", e.Step,
					"err", e.Err,
				)
				return
			}
			logger.InfoContext(ctx, "node_leave",
				"run_id", e.RunID,
				"node_id", e.NodeID,
				"step", e.Step,
				"duration", e.Duration,
				"changed", e.Diff.Keys(),
			)
		},
		OnRoute: func(ctx context.Context, e *domain.RouteEvent) {
			logger.InfoContext(ctx, "route",
				"run_id", e.RunID,
				"from", e.From,
				"to", e.To,
				"via", e.Via,
				"key", e.Key,
			)
		},
		OnInvokeEnd: func(ctx context.Context, e *domain.InvokeEvent) {
			level := slog.LevelInfo
			if e.Err != nil {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "invoke_end",
				"run_id", e.RunID,
				"status", e.Status,
				"steps", e.Steps,
				"duration", e.Duration,
			)
		},
	}
}
