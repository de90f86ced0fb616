package graph

import (
	"sort"

	"github.com/aretw0/stategraph/pkg/state"
)

// Compiled is a validated, immutable graph. It is safe for concurrent invocations:
// each call owns its state, visit counters and step index.
type Compiled struct {
	schema   *state.Schema
	entry    string
	nodes    map[string]*node
	order    []string
	edges    map[string]string
	branches map[string]branch
	cfg      config
}

// Edge is a static transition.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Branch is a conditional routing table.
type Branch struct {
	From    string            `json:"from"`
	Mapping map[string]string `json:"mapping"`
}

// NodeInfo describes one registered node.
type NodeInfo struct {
	Name         string   `json:"name"`
	Destinations []string `json:"destinations,omitempty"`
	Writes       []string `json:"writes,omitempty"`
}

// FieldInfo describes one state field.
type FieldInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Policy string `json:"policy"`
}

// Description is a serializable view of a compiled graph.
type Description struct {
	Name       string      `json:"name,omitempty"`
	EntryPoint string      `json:"entry_point"`
	Ceiling    int         `json:"retry_ceiling"`
	Fields     []FieldInfo `json:"fields"`
	Nodes      []NodeInfo  `json:"nodes"`
	Edges      []Edge      `json:"edges"`
	Branches   []Branch    `json:"branches"`
}

// Name returns the graph name set with WithName at compile time.
func (g *Compiled) Name() string { return g.cfg.name }

// EntryPoint returns the first node of every invocation.
func (g *Compiled) EntryPoint() string { return g.entry }

// Schema returns the state schema the graph was built over.
func (g *Compiled) Schema() *state.Schema { return g.schema }

// RetryCeiling returns the default visit ceiling.
func (g *Compiled) RetryCeiling() int { return g.cfg.ceiling }

// Nodes returns node names in registration order.
func (g *Compiled) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Edges returns the static edges ordered by source registration.
func (g *Compiled) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, name := range g.order {
		if dst, ok := g.edges[name]; ok {
			out = append(out, Edge{From: name, To: dst})
		}
	}
	return out
}

// Branches returns the conditional tables ordered by source registration.
func (g *Compiled) Branches() []Branch {
	out := make([]Branch, 0, len(g.branches))
	for _, name := range g.order {
		br, ok := g.branches[name]
		if !ok {
			continue
		}
		mapping := make(map[string]string, len(br.mapping))
		for k, v := range br.mapping {
			mapping[k] = v
		}
		out = append(out, Branch{From: name, Mapping: mapping})
	}
	return out
}

// Destinations returns the Command targets declared for name.
func (g *Compiled) Destinations(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), n.destinations...)
}

// Describe returns a serializable summary of the graph.
func (g *Compiled) Describe() Description {
	d := Description{
		Name:       g.cfg.name,
		EntryPoint: g.entry,
		Ceiling:    g.cfg.ceiling,
		Edges:      g.Edges(),
		Branches:   g.Branches(),
	}
	for _, f := range g.schema.Fields() {
		d.Fields = append(d.Fields, FieldInfo{Name: f.Name, Type: f.Type.Name(), Policy: f.Policy.String()})
	}
	for _, name := range g.order {
		n := g.nodes[name]
		writes := append([]string(nil), n.writes...)
		sort.Strings(writes)
		d.Nodes = append(d.Nodes, NodeInfo{
			Name:         name,
			Destinations: append([]string(nil), n.destinations...),
			Writes:       writes,
		})
	}
	return d
}
