package graph

import (
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/ports"
)

// DefaultRetryCeiling is the number of visits a node gets per invocation unless configured.
const DefaultRetryCeiling = 3

// DefaultLockTTL bounds how long a resume holds the run lock.
const DefaultLockTTL = 30 * time.Second

type config struct {
	name     string
	ceiling  int
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	store    ports.CheckpointStore
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	runID    string
	newRunID func() string
}

func defaultConfig() config {
	return config{
		ceiling: DefaultRetryCeiling,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		lockTTL: DefaultLockTTL,
	}
}

func (c config) with(opts []Option) config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures a compiled graph (when passed to Compile) or a single
// invocation (when passed to Invoke, Run or Resume, overriding the compiled defaults).
type Option func(*config)

// WithName labels the graph in logs, events and checkpoints.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithRetryCeiling sets how many times a single node may be visited per invocation.
// Values below 1 are ignored.
func WithRetryCeiling(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.ceiling = n
		}
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithCheckpointer saves a checkpoint after every step of an invocation.
func WithCheckpointer(store ports.CheckpointStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithLocker serializes Resume calls for the same run ID.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(c *config) {
		c.locker = locker
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

// WithRunID sets the ID used for checkpoints and events of one invocation.
func WithRunID(id string) Option {
	return func(c *config) {
		c.runID = id
	}
}

// WithRunIDGenerator replaces the default (UUID) run ID generator.
func WithRunIDGenerator(fn func() string) Option {
	return func(c *config) {
		c.newRunID = fn
	}
}
