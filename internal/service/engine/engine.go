// Package engine is the request pipeline: it parses a request, runs
// discovery or estimation, and converts the result to the wire form.
// Requests are stateless and share nothing but the Service's settings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
	"github.com/w-h-a/caus/internal/causerr"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/graph"
	"github.com/w-h-a/caus/internal/logging"
	"github.com/w-h-a/caus/internal/pcmci"
	"github.com/w-h-a/caus/internal/scm"
)

const (
	opDiscover = "discover"
	opEstimate = "estimate"
	opAnalyze  = "analyze"
	opSimulate = "simulate"

	// Steps projected when a simulate request leaves the horizon at 0
	DefaultHorizon = 10
)

type Service struct {
	options Options
}

// request carries one call's identity and progress.
type request struct {
	id     string
	op     string
	stage  Stage
	logger logging.Logger
}

func (s *Service) newRequest(op string) *request {
	id := uuid.NewString()
	return &request{
		id:     id,
		op:     op,
		stage:  StageParsed,
		logger: s.options.Logger.With("request_id", id, "op", op),
	}
}

// Discover runs the two-stage discovery on the request's table.
// MaxLag <= 0 uses the configured lag (3 by default). PcAlpha <= 0 selects
// the level automatically; PcAlpha > 1 is an InvalidConfiguration error.
// On error the returned graph is empty, never partial.
func (s *Service) Discover(ctx context.Context, req *causal.DiscoverRequest) (*causal.CausalGraph, error) {
	r := s.newRequest(opDiscover)
	start := time.Now()

	g, err := s.discover(ctx, r, req)
	s.finish(r, start, err)
	if err != nil {
		return emptyGraph(), err
	}

	s.options.Metrics.ObserveEdges(len(g.Edges))
	return g.ToAPI(), nil
}

// Estimate fits a linear model for every variable of the request's graph
// that has parents. Missing values are replaced by zero before fitting.
// On error the returned model map is empty, never partial.
func (s *Service) Estimate(ctx context.Context, req *causal.EstimateRequest) (*causal.EstimateResponse, error) {
	r := s.newRequest(opEstimate)
	start := time.Now()

	resp, err := s.estimate(ctx, r, req)
	s.finish(r, start, err)
	if err != nil {
		return emptyEstimate(), err
	}

	return resp, nil
}

// Analyze discovers a graph and estimates its models on the same table.
func (s *Service) Analyze(ctx context.Context, req *causal.AnalyzeRequest) (*causal.AnalyzeResponse, error) {
	r := s.newRequest(opAnalyze)
	start := time.Now()

	resp, err := s.analyze(ctx, r, req)
	s.finish(r, start, err)
	if err != nil {
		return &causal.AnalyzeResponse{Graph: emptyGraph(), Estimate: emptyEstimate()}, err
	}

	return resp, nil
}

// Simulate fits the request graph's models, then projects every variable
// Horizon steps ahead with and without the intervention.
func (s *Service) Simulate(ctx context.Context, req *causal.SimulateRequest) (*causal.SimulateResponse, error) {
	r := s.newRequest(opSimulate)
	start := time.Now()

	resp, err := s.simulate(ctx, r, req)
	s.finish(r, start, err)
	if err != nil {
		return &causal.SimulateResponse{Metrics: map[string]*causal.Trajectory{}}, err
	}

	return resp, nil
}

func (s *Service) discover(ctx context.Context, r *request, req *causal.DiscoverRequest) (*graph.CausalGraph, error) {
	if req == nil {
		return nil, causerr.InvalidConfiguration(r.op, "no request")
	}

	// 1. Resolve settings and parse, before any computation
	opts, err := s.pcmciOptions(r, req.MaxLag, req.PcAlpha)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.LoadCSVFromString(req.CsvData, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// 2. Discover
	return s.runDiscovery(ctx, r, ds, opts)
}

func (s *Service) runDiscovery(ctx context.Context, r *request, ds *dataset.Dataset, opts pcmci.Options) (*graph.CausalGraph, error) {
	r.logger.Info("discovery started",
		"variables", ds.NumVars(), "rows", ds.Len(), "max_lag", opts.MaxLag, "alpha", opts.Alpha)

	sk, err := pcmci.BuildSkeleton(ctx, ds, opts)
	if err != nil {
		return nil, err
	}
	if err := r.advance(StageSkeletonBuilt); err != nil {
		return nil, err
	}

	g, err := pcmci.Orient(ctx, sk, ds, opts)
	if err != nil {
		return nil, err
	}
	if err := r.advance(StageOriented); err != nil {
		return nil, err
	}

	if len(g.Unresolved) > 0 {
		r.logger.Warn("contemporaneous links left out of the graph", "unresolved", len(g.Unresolved))
	}

	return g, nil
}

func (s *Service) estimate(ctx context.Context, r *request, req *causal.EstimateRequest) (*causal.EstimateResponse, error) {
	if req == nil {
		return nil, causerr.InvalidConfiguration(r.op, "no request")
	}

	// 1. Parse
	ds, err := dataset.LoadCSVFromString(req.CsvData, nil)
	if err != nil {
		return nil, err
	}
	g, err := graph.FromAPI(req.Graph, ds.Labels())
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// 2. Fit
	return s.runEstimation(ctx, r, g, ds)
}

func (s *Service) runEstimation(ctx context.Context, r *request, g *graph.CausalGraph, ds *dataset.Dataset) (*causal.EstimateResponse, error) {
	missing := 0
	for v := 0; v < ds.NumVars(); v++ {
		missing += ds.MissingCount(v)
	}
	if missing > 0 {
		r.logger.Warn("missing values replaced by zero before estimation", "missing", missing)
	}

	models, err := scm.Estimate(ctx, g, ds.FillMissing(0), scm.Options{
		Workers: s.options.Config.Engine.Workers,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := r.advance(StageEstimated); err != nil {
		return nil, err
	}

	s.options.Metrics.ObserveModels(len(models))
	return toEstimateResponse(models), nil
}

func (s *Service) analyze(ctx context.Context, r *request, req *causal.AnalyzeRequest) (*causal.AnalyzeResponse, error) {
	if req == nil {
		return nil, causerr.InvalidConfiguration(r.op, "no request")
	}

	opts, err := s.pcmciOptions(r, req.MaxLag, req.PcAlpha)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.LoadCSVFromString(req.CsvData, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	g, err := s.runDiscovery(ctx, r, ds, opts)
	if err != nil {
		return nil, err
	}
	s.options.Metrics.ObserveEdges(len(g.Edges))

	est, err := s.runEstimation(ctx, r, g, ds)
	if err != nil {
		return nil, err
	}

	return &causal.AnalyzeResponse{Graph: g.ToAPI(), Estimate: est}, nil
}

func (s *Service) simulate(ctx context.Context, r *request, req *causal.SimulateRequest) (*causal.SimulateResponse, error) {
	if req == nil {
		return nil, causerr.InvalidConfiguration(r.op, "no request")
	}

	// 1. Parse
	iv, err := toIntervention(req.Intervention)
	if err != nil {
		return nil, err
	}
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	ds, err := dataset.LoadCSVFromString(req.CsvData, nil)
	if err != nil {
		return nil, err
	}
	g, err := graph.FromAPI(req.Graph, ds.Labels())
	if err != nil {
		return nil, err
	}
	filled := ds.FillMissing(0)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// 2. Fit
	models, err := scm.Estimate(ctx, g, filled, scm.Options{
		Workers: s.options.Config.Engine.Workers,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := r.advance(StageEstimated); err != nil {
		return nil, err
	}

	// 3. Project
	proj, err := scm.Project(models, filled, horizon, iv)
	if err != nil {
		return nil, err
	}
	if err := r.advance(StageSimulated); err != nil {
		return nil, err
	}

	out := &causal.SimulateResponse{Metrics: make(map[string]*causal.Trajectory, len(proj.Labels))}
	for _, label := range proj.Labels {
		base, cf, _ := proj.Series(label)
		out.Metrics[label] = &causal.Trajectory{Original: base, Simulated: cf}
	}

	r.logger.Info("simulation done", "horizon", horizon, "intervention", iv != nil, "models", len(models))
	return out, nil
}

// toIntervention maps the wire form; nil stays nil.
func toIntervention(in *causal.Intervention) (*scm.Intervention, error) {
	if in == nil {
		return nil, nil
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return nil, causerr.InvalidConfiguration(opSimulate, "intervention value %v is not finite", in.Value)
	}

	switch in.Action {
	case causal.ActionIncreaseByPercent:
		return &scm.Intervention{Target: in.TargetNode, Action: scm.ActionScale, Value: 1 + in.Value}, nil
	case causal.ActionSetToFixed:
		return &scm.Intervention{Target: in.TargetNode, Action: scm.ActionSet, Value: in.Value}, nil
	default:
		return nil, causerr.InvalidConfiguration(opSimulate, "unknown intervention action %q", in.Action)
	}
}

// pcmciOptions merges the request's lag and level over the configured engine
// settings.
func (s *Service) pcmciOptions(r *request, maxLag int, alpha float64) (pcmci.Options, error) {
	e := s.options.Config.Engine

	if math.IsNaN(alpha) || alpha > 1 {
		return pcmci.Options{}, causerr.InvalidConfiguration(r.op, "pc_alpha %v outside (0,1]", alpha)
	}
	if maxLag <= 0 {
		maxLag = e.MaxLag
	}
	if maxLag <= 0 {
		maxLag = pcmci.DefaultMaxLag
	}
	if alpha <= 0 {
		alpha = e.PcAlpha
	}

	opts := pcmci.DefaultOptions()
	opts.MaxLag = maxLag
	opts.Alpha = alpha
	opts.MaxConditioningSize = e.MaxConditioningSize
	opts.MaxCombinations = e.MaxCombinations
	opts.MaxTests = e.MaxTests
	opts.Contemporaneous = e.Contemporaneous
	if e.Workers > 0 {
		opts.Workers = e.Workers
	}
	if len(e.AutoAlphas) > 0 {
		opts.AutoAlphas = append([]float64(nil), e.AutoAlphas...)
	}
	opts.Logger = r.logger
	if s.options.Metrics != nil {
		opts.Observer = s.options.Metrics
	}

	if err := opts.Validate(); err != nil {
		return pcmci.Options{}, err
	}
	return opts, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t := s.options.Config.Engine.Timeout; t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

// finish logs and records the request's outcome.
func (s *Service) finish(r *request, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := outcomeOf(err)
	s.options.Metrics.ObserveRequest(r.op, outcome, elapsed)

	if err != nil {
		r.logger.Error("request failed",
			"stage", r.stage.String(), "kind", outcome, "elapsed", elapsed, "error", err)
		return
	}
	r.logger.Info("request done", "stage", r.stage.String(), "elapsed", elapsed)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return causerr.KindOf(err).String()
	}
}

func toEstimateResponse(models map[string]*scm.LinearModel) *causal.EstimateResponse {
	out := &causal.EstimateResponse{Models: make(map[string]*causal.ModelInfo, len(models))}
	for label, m := range models {
		out.Models[label] = &causal.ModelInfo{
			Features:     m.Features,
			Coefficients: m.Coefficients,
			Intercept:    m.Intercept,
		}
	}
	return out
}

func emptyGraph() *causal.CausalGraph {
	return &causal.CausalGraph{Nodes: []*causal.Node{}, Edges: []*causal.Edge{}}
}

func emptyEstimate() *causal.EstimateResponse {
	return &causal.EstimateResponse{Models: map[string]*causal.ModelInfo{}}
}

// New builds a Service. Without options it uses config.Default() and
// discards logs.
func New(opts ...Option) *Service {
	options := NewOptions(opts...)

	return &Service{
		options: options,
	}
}

// String describes the service's effective engine settings.
func (s *Service) String() string {
	e := s.options.Config.Engine
	return fmt.Sprintf("engine(max_lag=%d pc_alpha=%v max_conditioning_size=%d workers=%d timeout=%s)",
		e.MaxLag, e.PcAlpha, e.MaxConditioningSize, e.Workers, e.Timeout)
}
