// Package causerr classifies the failures of the discovery and estimation
// pipeline.
//
// Every error that leaves a pipeline stage carries one of four kinds so the
// calling layer can tell a bad request from bad data or a numerical failure:
//
//	if errors.Is(err, causerr.ErrSingularDesignMatrix) {
//	    // the graph asked for a regression the data cannot support
//	}
package causerr

import (
	"errors"
	"fmt"
)

// What kind of failure happened
type Kind int

const (
	KindUnknown Kind = iota
	// Bad request: alpha outside (0,1], malformed table, unknown labels
	KindInvalidConfiguration
	// Too few usable rows for the requested conditioning-set size
	KindInsufficientData
	// Regression underdetermined or rank-deficient
	KindSingularDesignMatrix
	// Catch-all numerical failure, e.g. a non-finite statistic
	KindUpstreamComputation
)

// String returns the name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindInsufficientData:
		return "insufficient_data"
	case KindSingularDesignMatrix:
		return "singular_design_matrix"
	case KindUpstreamComputation:
		return "upstream_computation"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrInsufficientData     = &Error{Kind: KindInsufficientData}
	ErrSingularDesignMatrix = &Error{Kind: KindSingularDesignMatrix}
	ErrUpstreamComputation  = &Error{Kind: KindUpstreamComputation}
)

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "citest" or "scm.estimate"
	Op  string
	Msg string
	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New builds a classified error with a formatted message.
func New(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func InvalidConfiguration(op string, format string, args ...any) *Error {
	return New(KindInvalidConfiguration, op, format, args...)
}

func InsufficientData(op string, format string, args ...any) *Error {
	return New(KindInsufficientData, op, format, args...)
}

func SingularDesignMatrix(op string, format string, args ...any) *Error {
	return New(KindSingularDesignMatrix, op, format, args...)
}

func UpstreamComputation(op string, format string, args ...any) *Error {
	return New(KindUpstreamComputation, op, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
