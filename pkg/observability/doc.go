/*
Package observability turns graph lifecycle events into logs and metrics.

Both helpers return domain.LifecycleHooks, so they compose with graph.WithLifecycleHooks:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	g, err := builder.Compile(
		graph.WithLifecycleHooks(metrics.Hooks()),
		graph.WithLifecycleHooks(observability.LoggingHooks(logger)),
	)
*/
package observability
