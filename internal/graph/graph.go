// Package graph is the typed, id-indexed form of a discovered causal graph.
//
// Variables are addressed by integer id; labels only matter at the edges of
// the system, where ToAPI and FromAPI convert to and from the wire form.
package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
	"github.com/w-h-a/caus/internal/causerr"
)

// What kind of edge it is
type EdgeType int

const (
	Directed EdgeType = iota
	// Contemporaneous link whose direction could not be resolved
	Undirected
)

func (t EdgeType) String() string {
	if t == Undirected {
		return "undirected"
	}
	return causal.EdgeTypeDirected
}

type Variable struct {
	ID    int
	Label string
}

// Edge is a lag-annotated link Source(t-Lag) -> Target(t).
type Edge struct {
	Source int
	Target int
	Lag    int
	Type   EdgeType
	// MCI test outcome, the p-value doubles as a confidence score
	PValue    float64
	Statistic float64
}

// Parent is one (variable, lag) cause of a target.
type Parent struct {
	Var int
	Lag int
}

// CausalGraph holds the variables and the final directed edges. Unresolved
// contemporaneous links are kept apart and never appear in Edges.
type CausalGraph struct {
	Variables  []Variable
	Edges      []Edge
	Unresolved []Edge
}

// New builds a graph over the given labels, ids follow label order.
func New(labels []string) *CausalGraph {
	vars := make([]Variable, len(labels))
	for i, l := range labels {
		vars[i] = Variable{ID: i, Label: l}
	}
	return &CausalGraph{Variables: vars}
}

// Sort puts edges in enumeration order: source id, target id, lag.
func (g *CausalGraph) Sort() {
	sortEdges(g.Edges)
	sortEdges(g.Unresolved)
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(a, b int) bool {
		ea, eb := edges[a], edges[b]
		if ea.Source != eb.Source {
			return ea.Source < eb.Source
		}
		if ea.Target != eb.Target {
			return ea.Target < eb.Target
		}
		return ea.Lag < eb.Lag
	})
}

// Parents returns target's incoming (variable, lag) pairs in edge
// enumeration order.
func (g *CausalGraph) Parents(target int) []Parent {
	var out []Parent
	for _, e := range g.Edges {
		if e.Target == target {
			out = append(out, Parent{Var: e.Source, Lag: e.Lag})
		}
	}
	return out
}

// InDegree returns the number of directed edges into each variable.
func (g *CausalGraph) InDegree() []int {
	deg := make([]int, len(g.Variables))
	for _, e := range g.Edges {
		deg[e.Target]++
	}
	return deg
}

// Label returns the label of variable id.
func (g *CausalGraph) Label(id int) string {
	return g.Variables[id].Label
}

// ToAPI converts to the wire form. Only directed edges are emitted.
func (g *CausalGraph) ToAPI() *causal.CausalGraph {
	out := &causal.CausalGraph{
		Nodes: make([]*causal.Node, 0, len(g.Variables)),
		Edges: make([]*causal.Edge, 0, len(g.Edges)),
	}
	for _, v := range g.Variables {
		out.Nodes = append(out.Nodes, &causal.Node{Id: v.ID, Label: v.Label})
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, &causal.Edge{
			Source: g.Label(e.Source),
			Target: g.Label(e.Target),
			Type:   causal.EdgeTypeDirected,
			Lag:    e.Lag,
		})
	}
	return out
}

// FromAPI resolves a wire graph against the dataset's labels; variable ids
// follow labels, not the ids in the request. Edges must name known labels,
// carry a non-negative lag and be directed (an empty type counts as
// directed). Edge order is preserved, it decides feature order downstream.
func FromAPI(in *causal.CausalGraph, labels []string) (*CausalGraph, error) {
	if in == nil {
		return nil, causerr.InvalidConfiguration("graph", "no graph provided")
	}

	g := New(labels)
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	seen := make(map[Edge]bool, len(in.Edges))
	for n, e := range in.Edges {
		if e == nil {
			return nil, causerr.InvalidConfiguration("graph", "edge %d is empty", n)
		}
		if e.Type != "" && e.Type != causal.EdgeTypeDirected {
			return nil, causerr.InvalidConfiguration("graph", "edge %d: unsupported type %q", n, e.Type)
		}
		src, ok := index[e.Source]
		if !ok {
			return nil, causerr.InvalidConfiguration("graph", "edge %d: unknown source %q", n, e.Source)
		}
		tgt, ok := index[e.Target]
		if !ok {
			return nil, causerr.InvalidConfiguration("graph", "edge %d: unknown target %q", n, e.Target)
		}
		if e.Lag < 0 {
			return nil, causerr.InvalidConfiguration("graph", "edge %d: negative lag %d", n, e.Lag)
		}
		if src == tgt && e.Lag == 0 {
			return nil, causerr.InvalidConfiguration("graph", "edge %d: %q cannot cause itself at lag 0", n, e.Source)
		}

		edge := Edge{Source: src, Target: tgt, Lag: e.Lag, Type: Directed}
		if seen[edge] {
			return nil, causerr.InvalidConfiguration("graph", "edge %d: duplicate %s -> %s lag %d", n, e.Source, e.Target, e.Lag)
		}
		seen[edge] = true
		g.Edges = append(g.Edges, edge)
	}

	return g, nil
}

// ReadJSON decodes a wire-format graph, e.g. a ground-truth fixture.
func ReadJSON(r io.Reader) (*causal.CausalGraph, error) {
	var out causal.CausalGraph
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, causerr.Wrap(causerr.KindInvalidConfiguration, "graph", fmt.Errorf("decode graph: %w", err))
	}
	return &out, nil
}

// LoadJSON reads a wire-format graph file.
func LoadJSON(path string) (*causal.CausalGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ReadJSON(f)
}

// WriteJSON encodes a wire-format graph with indentation.
func WriteJSON(w io.Writer, g *causal.CausalGraph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
