package dataset

import (
	"math"

	"github.com/w-h-a/caus/internal/causerr"
	"gonum.org/v1/gonum/mat"
)

// New builds a Dataset from row-major observations.
// labels: one unique, non-empty label per column
// rows: T rows of len(labels) values each, NaN marks a missing value
// Returns: the dataset, or an InvalidConfiguration error for a malformed table
func New(labels []string, rows [][]float64) (*Dataset, error) {
	if len(labels) == 0 {
		return nil, causerr.InvalidConfiguration("dataset", "no variables in header")
	}
	if len(rows) == 0 {
		return nil, causerr.InvalidConfiguration("dataset", "no data rows")
	}

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		if l == "" {
			return nil, causerr.InvalidConfiguration("dataset", "column %d has an empty label", i+1)
		}
		if _, dup := index[l]; dup {
			return nil, causerr.InvalidConfiguration("dataset", "duplicate label %q", l)
		}
		index[l] = i
	}

	K := len(labels)
	data := make([]float64, 0, len(rows)*K)
	for t, row := range rows {
		if len(row) != K {
			return nil, causerr.InvalidConfiguration("dataset", "row %d: expected %d values, got %d", t+1, K, len(row))
		}
		for k, v := range row {
			if math.IsInf(v, 0) {
				return nil, causerr.InvalidConfiguration("dataset", "row %d col %d: infinite value", t+1, k+1)
			}
		}
		data = append(data, row...)
	}

	ls := make([]string, K)
	copy(ls, labels)

	return &Dataset{
		y:      mat.NewDense(len(rows), K, data),
		labels: ls,
		index:  index,
	}, nil
}

// Len returns the number of time steps T.
func (d *Dataset) Len() int {
	T, _ := d.y.Dims()
	return T
}

// NumVars returns the number of variables K.
func (d *Dataset) NumVars() int {
	_, K := d.y.Dims()
	return K
}

// Labels returns a copy of the variable labels in id order.
func (d *Dataset) Labels() []string {
	out := make([]string, len(d.labels))
	copy(out, d.labels)
	return out
}

// Label returns the label of variable id.
func (d *Dataset) Label(id int) string { return d.labels[id] }

// Index returns the id of the variable with the given label.
func (d *Dataset) Index(label string) (int, bool) {
	id, ok := d.index[label]
	return id, ok
}

// At returns the observation of variable v at time t.
func (d *Dataset) At(t, v int) float64 { return d.y.At(t, v) }

// Column returns a copy of variable v's full series.
func (d *Dataset) Column(v int) []float64 {
	return mat.Col(nil, v, d.y)
}

// Lagged returns the series of variable v shifted back by lag, aligned on the
// sample rows t = cut, ..., T-1. Entry s is the value of v at time cut+s-lag.
// Every series taken with the same cut lines up row for row, which is what the
// independence tests and regressions rely on.
func (d *Dataset) Lagged(v, lag, cut int) ([]float64, error) {
	T, K := d.y.Dims()
	if v < 0 || v >= K {
		return nil, causerr.InvalidConfiguration("dataset", "variable id %d out of range [0,%d)", v, K)
	}
	if lag < 0 || lag > cut {
		return nil, causerr.InvalidConfiguration("dataset", "lag %d outside [0,%d]", lag, cut)
	}
	if cut >= T {
		return nil, causerr.InsufficientData("dataset", "cut %d leaves no rows out of %d", cut, T)
	}

	out := make([]float64, T-cut)
	for s := range out {
		out[s] = d.y.At(cut+s-lag, v)
	}
	return out, nil
}

// Shifted returns variable v's full-length series shifted back by lag: entry t
// is the value at t-lag, and the first lag entries are NaN.
func (d *Dataset) Shifted(v, lag int) []float64 {
	T, _ := d.y.Dims()
	out := make([]float64, T)
	for t := 0; t < T; t++ {
		if t-lag < 0 || t-lag >= T {
			out[t] = math.NaN()
			continue
		}
		out[t] = d.y.At(t-lag, v)
	}
	return out
}

// MissingCount returns how many values of variable v are NaN.
func (d *Dataset) MissingCount(v int) int {
	n := 0
	T, _ := d.y.Dims()
	for t := 0; t < T; t++ {
		if math.IsNaN(d.y.At(t, v)) {
			n++
		}
	}
	return n
}

// FillMissing returns a copy with every NaN replaced by value. The receiver is
// left untouched.
func (d *Dataset) FillMissing(value float64) *Dataset {
	T, K := d.y.Dims()
	filled := mat.NewDense(T, K, nil)
	filled.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return value
		}
		return v
	}, d.y)

	return &Dataset{
		y:      filled,
		labels: d.labels,
		index:  d.index,
	}
}
