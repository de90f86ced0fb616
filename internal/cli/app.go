package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/stategraph/internal/config"
	"github.com/aretw0/stategraph/internal/demos"
	"github.com/aretw0/stategraph/internal/logging"
	"github.com/aretw0/stategraph/pkg/adapters/file"
	"github.com/aretw0/stategraph/pkg/adapters/memory"
	"github.com/aretw0/stategraph/pkg/adapters/redis"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/observability"
	"github.com/aretw0/stategraph/pkg/persistence/middleware"
	"github.com/aretw0/stategraph/pkg/ports"
	"github.com/aretw0/stategraph/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App wires configuration, logging, checkpointing and the graph registry
// shared by every command.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	// Store and Locker are nil when the checkpoint backend is "none".
	Store  ports.CheckpointStore
	Locker ports.DistributedLocker

	closers []io.Closer
}

// Options tweak NewApp.
type Options struct {
	// LogOutput receives the logs (stderr when nil).
	LogOutput io.Writer
	// Deps overrides the demo collaborators.
	Deps *demos.Deps
}

// NewApp builds the application from cfg. Close releases the checkpoint backend.
func NewApp(cfg config.Config, opts Options) (*App, error) {
	level, err := logging.Parse(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := logging.NewWithWriter(out, level, cfg.LogJSON)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry.NewRegistry(),
		Metrics:  observability.NewMetrics(promReg),
		Gatherer: promReg,
	}

	a.Store, a.Locker, err = OpenStore(cfg.Checkpoint)
	if err != nil {
		return nil, err
	}
	if c, ok := a.Store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	deps := demos.StubDeps()
	if opts.Deps != nil {
		deps = *opts.Deps
	}
	if err := demos.Register(a.Registry, deps, a.GraphOptions); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// GraphOptions returns the compile options of a graph: its retry ceiling,
// the application logger and the metrics hooks.
func (a *App) GraphOptions(name string) []graph.Option {
	return []graph.Option{
		graph.WithRetryCeiling(a.Config.CeilingFor(name)),
		graph.WithLogger(a.Logger),
		graph.WithLifecycleHooks(a.Metrics.Hooks()),
	}
}

// RunOptions returns the options every invocation gets: checkpointing when a
// store is configured.
func (a *App) RunOptions() []graph.Option {
	if a.Store == nil {
		return nil
	}
	return []graph.Option{graph.WithCheckpointer(a.Store)}
}

// Close releases the checkpoint backend.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenStore creates the checkpoint store and locker selected by cfg, wrapped
// with masking and encryption when configured.
func OpenStore(cfg config.CheckpointConfig) (ports.CheckpointStore, ports.DistributedLocker, error) {
	store, locker, err := openBackend(cfg)
	if err != nil || store == nil {
		return store, locker, err
	}

	var mws []middleware.Middleware
	if len(cfg.MaskFields) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.MaskFields)
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, mw)
	}
	active, fallback, err := cfg.Keys()
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), locker, nil
}

func openBackend(cfg config.CheckpointConfig) (ports.CheckpointStore, ports.DistributedLocker, error) {
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil, nil
	case "", config.BackendMemory:
		return memory.NewStore(), memory.NewLocker(), nil
	case config.BackendFile:
		// Runs of one file store belong to one process; an in-process lock is enough.
		return file.New(cfg.Dir), memory.NewLocker(), nil
	case config.BackendRedis:
		var opts []redis.Option
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
		}
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		return store, redis.NewLocker(store.Client(), cfg.Redis.Prefix), nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
