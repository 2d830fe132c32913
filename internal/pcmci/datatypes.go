package pcmci

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/logging"
)

// Status of a candidate link
type LinkStatus int

const (
	Untested LinkStatus = iota
	Independent
	Dependent
)

func (s LinkStatus) String() string {
	switch s {
	case Independent:
		return "independent"
	case Dependent:
		return "dependent"
	default:
		return "untested"
	}
}

// Link is a lagged variable X_Var(t-Lag) as seen from a target at time t.
type Link struct {
	Var int
	Lag int
}

// less is the canonical order: ascending variable id, then lag.
func (l Link) less(o Link) bool {
	if l.Var != o.Var {
		return l.Var < o.Var
	}
	return l.Lag < o.Lag
}

// ParentSet is a target's surviving links in canonical order.
type ParentSet []Link

// Contains reports whether l is in the set.
func (p ParentSet) Contains(l Link) bool {
	for _, q := range p {
		if q == l {
			return true
		}
	}
	return false
}

// CandidateLink is one (Source, Lag) -> Target hypothesis and the outcome of
// the last test run on it.
type CandidateLink struct {
	Target int
	Source int
	Lag    int
	Status LinkStatus
	// Last test's p-value and Fisher z statistic
	PValue    float64
	Statistic float64
	// Set that separated the link, only for Independent links
	SepSet []Link
	// Conditioning-set size at which the link was removed, -1 if it survived
	RemovedAt int
}

// Link returns the source side of the candidate.
func (c *CandidateLink) Link() Link { return Link{Var: c.Source, Lag: c.Lag} }

// TestResult is the outcome of one conditional independence test.
type TestResult struct {
	Dependent   bool
	PValue      float64
	Statistic   float64
	PartialCorr float64
	// Effective sample size after dropping incomplete rows
	N int
}

// CondIndTest tests x ⟂ y | z.
type CondIndTest interface {
	Test(x, y []float64, z [][]float64, alpha float64) (TestResult, error)
}

// Observer is told how many tests each phase ran, e.g. to feed metrics.
type Observer interface {
	TestsRun(phase string, n int)
}

// Options for a discovery run. Start from DefaultOptions.
type Options struct {
	// Largest lag considered, >= 1 unless Contemporaneous is set
	MaxLag int
	// Significance level in (0,1]; 0 selects it per target from AutoAlphas
	Alpha float64
	// Largest conditioning-set size the skeleton tries, >= 0
	MaxConditioningSize int
	// Conditioning subsets tried per link and level, 0 means all
	MaxCombinations int
	// Hard ceiling on the tests of one run, 0 means DefaultMaxTests
	MaxTests int64
	// Size of the worker pool, 0 means runtime.NumCPU()
	Workers int
	// Also consider lag-0 links between distinct variables
	Contemporaneous bool
	// Candidate levels for automatic selection
	AutoAlphas []float64
	// Level of the MCI stage when Alpha is 0
	MCIAlpha float64

	Tester   CondIndTest
	Logger   logging.Logger
	Observer Observer
}

const (
	DefaultMaxLag              = 3
	DefaultMaxConditioningSize = 6
	DefaultMaxTests            = 250000
	DefaultMCIAlpha            = 0.05
)

// DefaultAutoAlphas are the levels tried when Alpha is 0.
var DefaultAutoAlphas = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5}

// DefaultOptions returns lag 3, automatic alpha and a conditioning cap of 6.
func DefaultOptions() Options {
	return Options{
		MaxLag:              DefaultMaxLag,
		MaxConditioningSize: DefaultMaxConditioningSize,
		MaxTests:            DefaultMaxTests,
		Workers:             runtime.NumCPU(),
		AutoAlphas:          append([]float64(nil), DefaultAutoAlphas...),
		MCIAlpha:            DefaultMCIAlpha,
		Tester:              ParCorr{},
	}
}

// Validate checks the options without touching data.
func (o Options) Validate() error {
	if o.MaxLag < 0 {
		return causerr.InvalidConfiguration("pcmci", "max lag %d is negative", o.MaxLag)
	}
	if o.MaxLag == 0 && !o.Contemporaneous {
		return causerr.InvalidConfiguration("pcmci", "max lag 0 without contemporaneous links leaves no candidates")
	}
	if !validAlpha(o.Alpha) && o.Alpha != 0 {
		return causerr.InvalidConfiguration("pcmci", "alpha %v outside (0,1]", o.Alpha)
	}
	if o.MaxConditioningSize < 0 {
		return causerr.InvalidConfiguration("pcmci", "max conditioning size %d is negative", o.MaxConditioningSize)
	}
	if o.MaxCombinations < 0 {
		return causerr.InvalidConfiguration("pcmci", "max combinations %d is negative", o.MaxCombinations)
	}
	if o.MaxTests < 0 {
		return causerr.InvalidConfiguration("pcmci", "max tests %d is negative", o.MaxTests)
	}
	if o.Workers < 0 {
		return causerr.InvalidConfiguration("pcmci", "workers %d is negative", o.Workers)
	}
	for _, a := range o.AutoAlphas {
		if !validAlpha(a) {
			return causerr.InvalidConfiguration("pcmci", "auto alpha %v outside (0,1]", a)
		}
	}
	if o.MCIAlpha != 0 && !validAlpha(o.MCIAlpha) {
		return causerr.InvalidConfiguration("pcmci", "mci alpha %v outside (0,1]", o.MCIAlpha)
	}
	return nil
}

func validAlpha(a float64) bool {
	return a > 0 && a <= 1 && !math.IsNaN(a)
}

// withDefaults fills the zero values that have a default.
func (o Options) withDefaults() Options {
	if o.MaxTests == 0 {
		o.MaxTests = DefaultMaxTests
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if len(o.AutoAlphas) == 0 {
		o.AutoAlphas = append([]float64(nil), DefaultAutoAlphas...)
	}
	if o.MCIAlpha == 0 {
		o.MCIAlpha = DefaultMCIAlpha
	}
	if o.Tester == nil {
		o.Tester = ParCorr{}
	}
	o.Logger = logging.OrNoOp(o.Logger)
	return o
}

// cut is the first sample row: every test of a run is aligned on rows
// t >= 2*MaxLag so the MCI stage can shift parents by up to another MaxLag.
func (o Options) cut() int { return 2 * o.MaxLag }

// mciAlpha is the level the MCI stage decides at.
func (o Options) mciAlpha() float64 {
	if o.Alpha > 0 {
		return o.Alpha
	}
	return o.MCIAlpha
}

// Skeleton is the output of BuildSkeleton.
type Skeleton struct {
	Labels []string
	MaxLag int
	// Every candidate per target, canonical order
	Links [][]CandidateLink
	// Surviving links per target
	Parents []ParentSet
	// Level each target was pruned at (differs per target under auto selection)
	Alphas []float64
	Tests  int64

	// test budget of the run, carried into Orient
	budget *budget
}

// Candidate returns the candidate (l.Var, l.Lag) -> target, if it exists.
func (s *Skeleton) Candidate(target int, l Link) (*CandidateLink, bool) {
	for i := range s.Links[target] {
		c := &s.Links[target][i]
		if c.Source == l.Var && c.Lag == l.Lag {
			return c, true
		}
	}
	return nil, false
}

// budget is the request-wide test ceiling shared by all workers.
type budget struct {
	limit int64
	used  atomic.Int64
}

func newBudget(limit int64) *budget {
	return &budget{limit: limit}
}

func (b *budget) take() error {
	if n := b.used.Add(1); n > b.limit {
		return causerr.UpstreamComputation("pcmci", "test budget of %d exhausted", b.limit)
	}
	return nil
}
