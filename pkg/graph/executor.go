package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/ports"
	"github.com/aretw0/stategraph/pkg/state"
	"github.com/google/uuid"
)

// RunInfo describes a finished (or failed) invocation.
type RunInfo struct {
	RunID   string           `json:"run_id"`
	Graph   string           `json:"graph,omitempty"`
	Status  domain.RunStatus `json:"status"`
	Steps   int              `json:"steps"`
	Visits  map[string]int   `json:"visits"`
	History []string         `json:"history"`
	State   state.State      `json:"state"`
}

// execution holds everything owned by a single invocation.
type execution struct {
	g       *Compiled
	cfg     config
	logger  *slog.Logger
	runID   string
	st      state.State
	current string
	step    int
	visits  map[string]int
	history []string
}

// Invoke runs the graph from its entry point and returns the final state.
func (g *Compiled) Invoke(ctx context.Context, initial state.Update, opts ...Option) (state.State, error) {
	info, err := g.Run(ctx, initial, opts...)
	return info.State, err
}

// Run is like Invoke but also reports the run ID, visit counters and the executed path.
// The returned RunInfo is never nil; on failure it holds the last good state.
func (g *Compiled) Run(ctx context.Context, initial state.Update, opts ...Option) (*RunInfo, error) {
	cfg := g.cfg.with(opts)
	e := g.newExecution(cfg, cfg.runID)

	st, err := g.schema.Build(initial)
	if err != nil {
		e.st = g.schema.Default()
		err = fmt.Errorf("%w: %w", ErrInvalidInput, err)
		return e.info(domain.StatusFailed), err
	}
	e.st = st
	e.current = g.entry

	return e.execute(ctx)
}

// Resume continues a checkpointed run from the node it was about to execute,
// with the saved state, visit counters and step index.
func (g *Compiled) Resume(ctx context.Context, store ports.CheckpointStore, runID string, opts ...Option) (*RunInfo, error) {
	cfg := g.cfg.with(opts)
	cfg.store = store

	if cfg.locker != nil {
		unlock, err := cfg.locker.Lock(ctx, "run:"+runID, cfg.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock run %s: %w", runID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				cfg.logger.Warn("failed to release run lock", "run_id", runID, "err", err)
			}
		}()
	}

	cp, err := store.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", runID, err)
	}
	if g.cfg.name != "" && cp.Graph != "" && cp.Graph != g.cfg.name {
		return nil, fmt.Errorf("checkpoint %s belongs to graph %q, not %q", runID, cp.Graph, g.cfg.name)
	}

	st, err := g.schema.Restore(cp.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to restore state of %s: %w", runID, err)
	}

	e := g.newExecution(cfg, cp.RunID)
	e.st = st
	e.current = cp.Next
	e.step = cp.Step
	e.history = append(e.history, cp.History...)
	for k, v := range cp.Visits {
		e.visits[k] = v
	}

	if cp.Status == domain.StatusCompleted || cp.Next == END {
		return e.info(domain.StatusCompleted), ErrRunCompleted
	}
	if _, ok := g.nodes[cp.Next]; !ok {
		return e.info(domain.StatusFailed), &RoutingError{Node: cp.Next, Goto: cp.Next, Step: cp.Step, State: st}
	}

	e.logger.Info("resuming run", "next", cp.Next, "step", cp.Step)
	return e.execute(ctx)
}

func (g *Compiled) newExecution(cfg config, runID string) *execution {
	if runID == "" {
		if cfg.newRunID != nil {
			runID = cfg.newRunID()
		} else {
			runID = uuid.NewString()
		}
	}
	logger := cfg.logger.With("run_id", runID)
	if cfg.name != "" {
		logger = logger.With("graph", cfg.name)
	}
	return &execution{
		g:      g,
		cfg:    cfg,
		logger: logger,
		runID:  runID,
		visits: make(map[string]int),
	}
}

func (e *execution) execute(ctx context.Context) (*RunInfo, error) {
	started := time.Now()
	err := e.loop(ctx)

	status := domain.StatusCompleted
	if err != nil {
		status = domain.StatusFailed
		e.logger.Error("invocation failed", "node", e.current, "step", e.step, "err", err)
	} else {
		e.logger.Debug("invocation completed", "steps", e.step)
	}

	if e.cfg.hooks.OnInvokeEnd != nil {
		e.cfg.hooks.OnInvokeEnd(ctx, &domain.InvokeEvent{
			EventBase: e.base(domain.EventInvokeEnd),
			Steps:     e.step,
			Status:    status,
			Duration:  time.Since(started),
			Err:       err,
		})
	}
	return e.info(status), err
}

func (e *execution) loop(ctx context.Context) error {
	for e.current != END {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("invocation stopped before %q at step %d: %w", e.current, e.step, err)
		}
		if err := e.advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

// advance executes the current node, merges its update and moves to the next node.
func (e *execution) advance(ctx context.Context) error {
	name := e.current
	n := e.g.nodes[name]
	prev := e.st

	e.visits[name]++
	visit := e.visits[name]
	if visit > e.cfg.ceiling {
		e.visits[name]--
		err := &RetryBudgetError{Node: name, Visits: visit, Ceiling: e.cfg.ceiling, Step: e.step, State: prev}
		e.fail(ctx, prev, err)
		return err
	}

	if e.cfg.hooks.OnNodeEnter != nil {
		e.cfg.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: e.base(domain.EventNodeEnter),
			NodeID:    name,
			Step:      e.step,
			Visit:     visit,
		})
	}
	e.logger.Debug("node_enter", "node", name, "step", e.step, "visit", visit)

	started := time.Now()
	update, target, err := call(ctx, n, prev)
	var next state.State
	if err == nil {
		next, err = e.g.schema.Merge(prev, update)
	}
	if err != nil {
		err = e.wrapNodeError(name, prev, err)
		e.leave(ctx, name, visit, started, prev, prev, err)
		e.fail(ctx, prev, err)
		return err
	}

	e.st = next
	e.leave(ctx, name, visit, started, prev, next, nil)

	dst, err := e.route(ctx, name, target)
	if err != nil {
		e.fail(ctx, prev, err)
		return err
	}

	e.history = append(e.history, name)
	e.step++
	e.current = dst
	e.save(ctx, domain.StatusRunning, nil)
	return nil
}

// call runs the node function, converting panics into errors.
func call(ctx context.Context, n *node, s state.State) (update state.Update, target string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrNodePanic, r, debug.Stack())
		}
	}()

	res, err := n.fn(ctx, s)
	if err != nil || res == nil {
		return nil, "", err
	}
	switch cmd := res.(type) {
	case Command:
		return cmd.Update, cmd.Goto, nil
	case *Command:
		if cmd == nil {
			return nil, "", nil
		}
		return cmd.Update, cmd.Goto, nil
	default:
		return res.Delta(), "", nil
	}
}

// decide runs a decision function, converting panics into errors.
func decide(br branch, s state.State) (key string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrDecisionPanic, r, debug.Stack())
		}
	}()
	return br.decide(s), nil
}

func (e *execution) wrapNodeError(name string, last state.State, err error) error {
	if errors.Is(err, state.ErrUndeclaredField) {
		return definitionError(fmt.Errorf("node %q at step %d: %w", name, e.step, err))
	}
	return &NodeExecutionError{Node: name, Step: e.step, State: last, Err: err}
}

// route resolves the next node: Command target, then conditional table, then static edge.
func (e *execution) route(ctx context.Context, from, target string) (string, error) {
	var (
		dst string
		via string
		key string
	)

	switch {
	case target != "":
		if _, ok := e.g.nodes[target]; !ok && target != END {
			return "", &RoutingError{Node: from, Goto: target, Step: e.step, State: e.st}
		}
		dst, via = target, "command"
	default:
		if br, ok := e.g.branches[from]; ok {
			var err error
			key, err = decide(br, e.st)
			if err != nil {
				return "", &RoutingError{Node: from, Step: e.step, State: e.st, Err: err}
			}
			mapped, ok := br.mapping[key]
			if !ok {
				return "", &RoutingError{Node: from, Key: key, Step: e.step, State: e.st}
			}
			dst, via = mapped, "conditional"
		} else if edge, ok := e.g.edges[from]; ok {
			dst, via = edge, "edge"
		} else {
			return "", definitionError(fmt.Errorf("%w: %q returned no Command target", ErrDeadEnd, from))
		}
	}

	e.logger.Debug("route", "from", from, "to", dst, "via", via, "key", key)
	if e.cfg.hooks.OnRoute != nil {
		e.cfg.hooks.OnRoute(ctx, &domain.RouteEvent{
			EventBase: e.base(domain.EventRoute),
			From:      from,
			To:        dst,
			Step:      e.step,
			Via:       via,
			Key:       key,
		})
	}
	return dst, nil
}

func (e *execution) leave(ctx context.Context, name string, visit int, started time.Time, before, after state.State, err error) {
	elapsed := time.Since(started)
	e.logger.Debug("node_leave", "node", name, "step", e.step, "duration", elapsed, "failed", err != nil)
	if e.cfg.hooks.OnNodeLeave == nil {
		return
	}
	ev := &domain.NodeEvent{
		EventBase: e.base(domain.EventNodeLeave),
		NodeID:    name,
		Step:      e.step,
		Visit:     visit,
		Duration:  elapsed,
		Err:       err,
	}
	if err == nil {
		ev.Diff = domain.Diff(before.Snapshot(), after.Snapshot())
	}
	e.cfg.hooks.OnNodeLeave(ctx, ev)
}

// fail records the failed step. The checkpoint keeps the state from before the
// step so that a resume re-executes it cleanly.
func (e *execution) fail(ctx context.Context, last state.State, err error) {
	e.st = last
	e.save(ctx, domain.StatusFailed, err)
	if stateful, ok := StateOf(err); ok {
		e.st = stateful
	}
}

func (e *execution) save(ctx context.Context, status domain.RunStatus, runErr error) {
	if e.cfg.store == nil {
		return
	}
	if status == domain.StatusRunning && e.current == END {
		status = domain.StatusCompleted
	}

	visits := make(map[string]int, len(e.visits))
	for k, v := range e.visits {
		visits[k] = v
	}
	cp := &domain.Checkpoint{
		RunID:     e.runID,
		Graph:     e.cfg.name,
		Next:      e.current,
		Step:      e.step,
		Visits:    visits,
		Values:    e.st.Snapshot(),
		History:   append([]string(nil), e.history...),
		Status:    status,
		UpdatedAt: time.Now(),
	}
	if runErr != nil {
		cp.Error = runErr.Error()
	}
	// A lost checkpoint must not fail the invocation itself.
	if err := e.cfg.store.Save(context.WithoutCancel(ctx), e.runID, cp); err != nil {
		e.logger.Warn("failed to save checkpoint", "step", e.step, "err", err)
	}
}

func (e *execution) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		Graph:     e.cfg.name,
		RunID:     e.runID,
	}
}

func (e *execution) info(status domain.RunStatus) *RunInfo {
	visits := make(map[string]int, len(e.visits))
	for k, v := range e.visits {
		visits[k] = v
	}
	return &RunInfo{
		RunID:   e.runID,
		Graph:   e.cfg.name,
		Status:  status,
		Steps:   e.step,
		Visits:  visits,
		History: append([]string(nil), e.history...),
		State:   e.st,
	}
}
