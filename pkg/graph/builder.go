package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/stategraph/pkg/state"
)

type branch struct {
	decide  DecisionFunc
	mapping map[string]string
}

// Builder accumulates nodes, edges and the entry point of a graph.
// Every Add/Set call validates what it can immediately and returns a
// *DefinitionError on failure; the same problems are reported again by Compile,
// so fluent code that ignores the intermediate errors cannot lose them.
//
// A Builder is not safe for concurrent use. It stays usable after Compile.
type Builder struct {
	schema   *state.Schema
	nodes    map[string]*node
	order    []string
	edges    map[string]string
	branches map[string]branch
	entry    string
	problems []error
}

// New creates a new graph builder over the given state schema.
func New(schema *state.Schema) *Builder {
	b := &Builder{
		schema:   schema,
		nodes:    make(map[string]*node),
		edges:    make(map[string]string),
		branches: make(map[string]branch),
	}
	if schema == nil {
		b.problems = append(b.problems, fmt.Errorf("%w: state schema is nil", ErrInvalidNode))
	}
	return b
}

func (b *Builder) fail(err error) error {
	b.problems = append(b.problems, err)
	return definitionError(err)
}

// AddNode registers a node under a unique name.
func (b *Builder) AddNode(name string, fn NodeFunc, opts ...NodeOption) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "" || name == END:
		return b.fail(fmt.Errorf("%w: name %q is reserved or empty", ErrInvalidNode, name))
	case fn == nil:
		return b.fail(fmt.Errorf("%w: node %q has no function", ErrInvalidNode, name))
	}
	if _, exists := b.nodes[name]; exists {
		return b.fail(fmt.Errorf("%w: %q", ErrDuplicateNode, name))
	}

	n := &node{name: name, fn: fn}
	for _, opt := range opts {
		opt(n)
	}
	b.nodes[name] = n
	b.order = append(b.order, name)
	return nil
}

func (b *Builder) isTarget(name string) bool {
	if name == END {
		return true
	}
	_, ok := b.nodes[name]
	return ok
}

func (b *Builder) checkSource(src string) error {
	if _, ok := b.nodes[src]; !ok {
		return fmt.Errorf("%w: edge source %q", ErrUnknownNode, src)
	}
	return nil
}

// AddEdge adds a static transition from src to dst (a node or END).
func (b *Builder) AddEdge(src, dst string) error {
	if err := b.checkSource(src); err != nil {
		return b.fail(err)
	}
	if !b.isTarget(dst) {
		return b.fail(fmt.Errorf("%w: edge %q -> %q targets an unknown node", ErrUnknownNode, src, dst))
	}
	if existing, ok := b.edges[src]; ok {
		return b.fail(fmt.Errorf("%w: %q already has a static edge to %q", ErrConflictingEdges, src, existing))
	}
	if _, ok := b.branches[src]; ok {
		return b.fail(fmt.Errorf("%w: %q already routes conditionally", ErrConflictingEdges, src))
	}
	b.edges[src] = dst
	return nil
}

// AddConditionalEdges routes from src by calling decide on the merged state
// and looking the returned key up in mapping.
func (b *Builder) AddConditionalEdges(src string, decide DecisionFunc, mapping map[string]string) error {
	if err := b.checkSource(src); err != nil {
		return b.fail(err)
	}
	if decide == nil {
		return b.fail(fmt.Errorf("%w: %q has a nil decision function", ErrInvalidNode, src))
	}
	if len(mapping) == 0 {
		return b.fail(fmt.Errorf("%w: from %q", ErrEmptyMapping, src))
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var unknown []error
	copied := make(map[string]string, len(mapping))
	for _, k := range keys {
		dst := mapping[k]
		if !b.isTarget(dst) {
			unknown = append(unknown, fmt.Errorf("%w: mapping %q of %q targets %q", ErrUnknownNode, k, src, dst))
			continue
		}
		copied[k] = dst
	}
	if len(unknown) > 0 {
		b.problems = append(b.problems, unknown...)
		return definitionError(unknown...)
	}

	if _, ok := b.branches[src]; ok {
		return b.fail(fmt.Errorf("%w: %q already has a conditional table", ErrConflictingEdges, src))
	}
	if existing, ok := b.edges[src]; ok {
		return b.fail(fmt.Errorf("%w: %q already has a static edge to %q", ErrConflictingEdges, src, existing))
	}
	b.branches[src] = branch{decide: decide, mapping: copied}
	return nil
}

// SetEntryPoint sets the node every invocation starts at.
func (b *Builder) SetEntryPoint(name string) error {
	if _, ok := b.nodes[name]; !ok {
		return b.fail(fmt.Errorf("%w: entry point %q", ErrUnknownNode, name))
	}
	b.entry = name
	return nil
}

// Compile validates the whole graph and freezes it into an immutable Compiled graph.
// Options given here become the defaults of every invocation.
func (b *Builder) Compile(opts ...Option) (*Compiled, error) {
	problems := append([]error(nil), b.problems...)

	if b.entry == "" {
		problems = append(problems, ErrNoEntryPoint)
	}

	for _, name := range b.order {
		n := b.nodes[name]
		_, hasEdge := b.edges[name]
		_, hasBranch := b.branches[name]
		if !hasEdge && !hasBranch && len(n.destinations) == 0 {
			problems = append(problems, fmt.Errorf("%w: %q has no edge, conditional table or declared destinations", ErrDeadEnd, name))
		}
		for _, dst := range n.destinations {
			if !b.isTarget(dst) {
				problems = append(problems, fmt.Errorf("%w: %q declares destination %q", ErrUnknownNode, name, dst))
			}
		}
		if b.schema != nil {
			for _, field := range n.writes {
				if !b.schema.Has(field) {
					problems = append(problems, fmt.Errorf("%w: node %q writes %q", ErrUndeclaredField, name, field))
				}
			}
		}
	}

	if b.entry != "" {
		reached := b.reachable()
		for _, name := range b.order {
			if !reached[name] {
				problems = append(problems, fmt.Errorf("%w: %q cannot be reached from %q", ErrUnreachableNode, name, b.entry))
			}
		}
	}

	if len(problems) > 0 {
		return nil, definitionError(problems...)
	}

	return b.freeze(defaultConfig().with(opts)), nil
}

// reachable walks every possible transition from the entry point.
func (b *Builder) reachable() map[string]bool {
	seen := map[string]bool{b.entry: true}
	queue := []string{b.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range b.successors(cur) {
			if next == END || seen[next] {
				continue
			}
			if _, ok := b.nodes[next]; !ok {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}

func (b *Builder) successors(name string) []string {
	var out []string
	if dst, ok := b.edges[name]; ok {
		out = append(out, dst)
	}
	if br, ok := b.branches[name]; ok {
		keys := make([]string, 0, len(br.mapping))
		for k := range br.mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, br.mapping[k])
		}
	}
	if n, ok := b.nodes[name]; ok {
		out = append(out, n.destinations...)
	}
	return out
}

func (b *Builder) freeze(cfg config) *Compiled {
	g := &Compiled{
		schema:   b.schema,
		entry:    b.entry,
		nodes:    make(map[string]*node, len(b.nodes)),
		order:    append([]string(nil), b.order...),
		edges:    make(map[string]string, len(b.edges)),
		branches: make(map[string]branch, len(b.branches)),
		cfg:      cfg,
	}
	for name, n := range b.nodes {
		cp := *n
		cp.destinations = append([]string(nil), n.destinations...)
		cp.writes = append([]string(nil), n.writes...)
		g.nodes[name] = &cp
	}
	for src, dst := range b.edges {
		g.edges[src] = dst
	}
	for src, br := range b.branches {
		mapping := make(map[string]string, len(br.mapping))
		for k, v := range br.mapping {
			mapping[k] = v
		}
		g.branches[src] = branch{decide: br.decide, mapping: mapping}
	}
	return g
}
