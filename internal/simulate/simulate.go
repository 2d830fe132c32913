// Package simulate generates synthetic data from a known linear structural
// process, so discovery can be checked against a ground truth.
package simulate

import (
	"math/rand"

	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
)

// Term is one cause of a target: Coeff * X_Source(t-Lag).
type Term struct {
	Source int
	Lag    int
	Coeff  float64
}

// Process is a linear structural process with Gaussian noise:
// X_j(t) = sum over Terms[j] of Coeff * X_Source(t-Lag) + NoiseStd * e_j(t)
type Process struct {
	Labels []string
	// Terms per target, indexed like Labels
	Terms    [][]Term
	NoiseStd float64
}

// Options for Generate
type Options struct {
	// Number of rows returned
	T int
	// RNG seed, the same seed gives the same data
	Seed int64
	// Rows simulated and thrown away first so the start value is forgotten
	BurnIn int
}

// ServiceChain is the three-service process used as ground truth:
//
//	service_a(t) = 0.5 service_a(t-1) + e
//	service_b(t) = 0.5 service_b(t-1) + 0.5 service_a(t-1) + e
//	service_c(t) = 0.5 service_c(t-1) + 0.5 service_b(t-2) + e
func ServiceChain() *Process {
	return &Process{
		Labels: []string{"service_a", "service_b", "service_c"},
		Terms: [][]Term{
			{{Source: 0, Lag: 1, Coeff: 0.5}},
			{{Source: 1, Lag: 1, Coeff: 0.5}, {Source: 0, Lag: 1, Coeff: 0.5}},
			{{Source: 2, Lag: 1, Coeff: 0.5}, {Source: 1, Lag: 2, Coeff: 0.5}},
		},
		NoiseStd: 1,
	}
}

// Validate checks the process is well formed.
func (p *Process) Validate() error {
	if len(p.Labels) == 0 {
		return causerr.InvalidConfiguration("simulate", "process has no variables")
	}
	if len(p.Terms) != len(p.Labels) {
		return causerr.InvalidConfiguration("simulate", "%d term lists for %d variables", len(p.Terms), len(p.Labels))
	}
	if p.NoiseStd < 0 {
		return causerr.InvalidConfiguration("simulate", "negative noise std %v", p.NoiseStd)
	}
	for j, terms := range p.Terms {
		for _, term := range terms {
			if term.Source < 0 || term.Source >= len(p.Labels) {
				return causerr.InvalidConfiguration("simulate", "%s: source %d out of range", p.Labels[j], term.Source)
			}
			if term.Lag < 1 {
				return causerr.InvalidConfiguration("simulate", "%s: lag %d, only lagged terms are supported", p.Labels[j], term.Lag)
			}
		}
	}
	return nil
}

// MaxLag returns the largest lag of any term.
func (p *Process) MaxLag() int {
	maxLag := 0
	for _, terms := range p.Terms {
		for _, term := range terms {
			if term.Lag > maxLag {
				maxLag = term.Lag
			}
		}
	}
	return maxLag
}

// Generate simulates opts.T rows of the process.
func (p *Process) Generate(opts Options) (*dataset.Dataset, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opts.T <= 0 {
		return nil, causerr.InvalidConfiguration("simulate", "T must be > 0, got %d", opts.T)
	}
	if opts.BurnIn < 0 {
		opts.BurnIn = 0
	}

	K := len(p.Labels)
	p0 := p.MaxLag()
	total := p0 + opts.BurnIn + opts.T
	rng := rand.New(rand.NewSource(opts.Seed))

	// first p0 rows start at zero
	Y := make([][]float64, total)
	for t := 0; t < total; t++ {
		Y[t] = make([]float64, K)
		if t < p0 {
			continue
		}
		for j := 0; j < K; j++ {
			val := p.NoiseStd * rng.NormFloat64()
			for _, term := range p.Terms[j] {
				val += term.Coeff * Y[t-term.Lag][term.Source]
			}
			Y[t][j] = val
		}
	}

	return dataset.New(p.Labels, Y[p0+opts.BurnIn:])
}

// GroundTruth returns the process's edges in the wire graph format.
func (p *Process) GroundTruth() *causal.CausalGraph {
	g := graph.New(p.Labels)
	for j, terms := range p.Terms {
		for _, term := range terms {
			if term.Coeff == 0 {
				continue
			}
			g.Edges = append(g.Edges, graph.Edge{Source: term.Source, Target: j, Lag: term.Lag, Type: graph.Directed})
		}
	}
	g.Sort()
	return g.ToAPI()
}
