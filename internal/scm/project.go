package scm

import (
	"math"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"gonum.org/v1/gonum/mat"
)

// Action is how an intervention changes its target.
type Action int

const (
	// Replace the target's value with Value
	ActionSet Action = iota
	// Multiply the target's baseline value at the same step by Value
	ActionScale
)

// Intervention forces one variable at every projected step.
type Intervention struct {
	Target string
	Action Action
	Value  float64
}

// Projection holds steps x K trajectories, columns in dataset order.
type Projection struct {
	Labels         []string
	Baseline       *mat.Dense
	Counterfactual *mat.Dense
}

// Series returns the baseline and counterfactual paths of one variable.
func (p *Projection) Series(label string) (baseline, counterfactual []float64, ok bool) {
	for k, l := range p.Labels {
		if l == label {
			return mat.Col(nil, k, p.Baseline), mat.Col(nil, k, p.Counterfactual), true
		}
	}
	return nil, nil, false
}

// Project rolls the fitted models forward steps periods past the end of ds,
// once as is and once under iv (nil means no intervention, both paths equal).
// Variables without a model hold their last observed value. Lag-0 features
// are resolved in dependency order within a step.
// ds: the table the models were fitted on, its last rows seed the recursion
// and must not be missing
func Project(models map[string]*LinearModel, ds *dataset.Dataset, steps int, iv *Intervention) (*Projection, error) {
	if ds == nil {
		return nil, causerr.InvalidConfiguration("scm.project", "no dataset")
	}
	if steps <= 0 {
		return nil, causerr.InvalidConfiguration("scm.project", "steps must be > 0, got %d", steps)
	}

	K := ds.NumVars()
	byID := make([]*LinearModel, K)
	p := 1
	for label, m := range models {
		id, ok := ds.Index(label)
		if !ok {
			return nil, causerr.InvalidConfiguration("scm.project", "model for unknown variable %q", label)
		}
		byID[id] = m
		for _, par := range m.Parents {
			if par.Lag > p {
				p = par.Lag
			}
		}
	}

	target := -1
	if iv != nil {
		id, ok := ds.Index(iv.Target)
		if !ok {
			return nil, causerr.InvalidConfiguration("scm.project", "intervention on unknown variable %q", iv.Target)
		}
		target = id
	}

	order, err := evaluationOrder(byID)
	if err != nil {
		return nil, err
	}

	T := ds.Len()
	if T < p {
		return nil, causerr.InsufficientData("scm.project", "need at least %d rows of history, got %d", p, T)
	}

	// 1. Seed the recursion with the last p observed rows
	seed := mat.NewDense(p+steps, K, nil)
	for i := 0; i < p; i++ {
		for k := 0; k < K; k++ {
			v := ds.At(T-p+i, k)
			if math.IsNaN(v) {
				return nil, causerr.InsufficientData("scm.project", "missing %s at row %d of the history", ds.Label(k), T-p+i+1)
			}
			seed.Set(i, k, v)
		}
	}

	// 2. Roll the baseline, then the intervened path against it
	baseline := roll(mat.DenseCopyOf(seed), byID, order, p, steps, -1, nil, nil)
	counterfactual := roll(mat.DenseCopyOf(seed), byID, order, p, steps, target, iv, baseline)

	return &Projection{
		Labels:         ds.Labels(),
		Baseline:       baseline,
		Counterfactual: counterfactual,
	}, nil
}

// roll fills rows p.. of out and returns the projected rows only. A scaled
// target is its baseline value at the same step times iv.Value, so the
// change stays a fixed ratio instead of compounding.
func roll(out *mat.Dense, byID []*LinearModel, order []int, p, steps, target int, iv *Intervention, baseline *mat.Dense) *mat.Dense {
	_, K := out.Dims()
	for step := 0; step < steps; step++ {
		row := p + step
		for _, k := range order {
			val := out.At(row-1, k)
			if m := byID[k]; m != nil {
				val = m.Intercept
				for c, par := range m.Parents {
					val += m.Coefficients[c] * out.At(row-par.Lag, par.Var)
				}
			}
			if k == target {
				switch iv.Action {
				case ActionSet:
					val = iv.Value
				case ActionScale:
					val = baseline.At(step, k) * iv.Value
				}
			}
			out.Set(row, k, val)
		}
	}
	return mat.DenseCopyOf(out.Slice(p, p+steps, 0, K))
}

// evaluationOrder sorts variables so every lag-0 parent comes before its
// child. A lag-0 cycle cannot be evaluated.
func evaluationOrder(byID []*LinearModel) ([]int, error) {
	K := len(byID)
	indeg := make([]int, K)
	children := make([][]int, K)
	for k, m := range byID {
		if m == nil {
			continue
		}
		for _, par := range m.Parents {
			if par.Lag == 0 {
				indeg[k]++
				children[par.Var] = append(children[par.Var], k)
			}
		}
	}

	// Kahn's algorithm, lowest id first for a stable order
	order := make([]int, 0, K)
	done := make([]bool, K)
	for len(order) < K {
		next := -1
		for k := 0; k < K; k++ {
			if !done[k] && indeg[k] == 0 {
				next = k
				break
			}
		}
		if next < 0 {
			return nil, causerr.InvalidConfiguration("scm.project", "contemporaneous links form a cycle")
		}
		done[next] = true
		order = append(order, next)
		for _, c := range children[next] {
			indeg[c]--
		}
	}
	return order, nil
}
