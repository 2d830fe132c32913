// Package dataset holds the immutable observation table a request runs on.
//
// A Dataset is T rows (time steps) by K columns (variables). Missing values
// are stored as NaN and are never imputed here; FillMissing returns a new,
// filled copy for callers whose policy allows it.
package dataset

import (
	"gonum.org/v1/gonum/mat"
)

// Dataset is an immutable multivariate time series
type Dataset struct {
	// Matrix for data, rows are time steps and columns are variables
	y *mat.Dense
	// Variable labels, position is the variable id
	labels []string
	// Label -> id lookup
	index map[string]int
}

// CSVOptions controls how a table is parsed.
type CSVOptions struct {
	// Field delimiter (default ',')
	Delimiter rune
	// Cell values read as missing, compared case-insensitively after trimming
	MissingTokens []string
}

// DefaultCSVOptions returns comma-separated parsing with the usual missing
// markers.
func DefaultCSVOptions() *CSVOptions {
	return &CSVOptions{
		Delimiter:     ',',
		MissingTokens: []string{"", "na", "nan", "null"},
	}
}
