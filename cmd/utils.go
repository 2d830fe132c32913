package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
	"github.com/w-h-a/caus/internal/config"
	"github.com/w-h-a/caus/internal/graph"
	"github.com/w-h-a/caus/internal/logging"
	"github.com/w-h-a/caus/internal/metrics"
	"github.com/w-h-a/caus/internal/service/engine"
)

// loadConfig reads --config when given, then applies the flags that were set
// on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if c.IsSet("workers") {
		cfg.Engine.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.Engine.Timeout = c.Duration("timeout")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("max-conditioning") {
		cfg.Engine.MaxConditioningSize = c.Int("max-conditioning")
	}
	if c.IsSet("contemporaneous") {
		cfg.Engine.Contemporaneous = c.Bool("contemporaneous")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup builds the logger and service for a command. The returned stop
// function shuts the metrics endpoint down, if one was started.
func setup(c *cli.Context) (*engine.Service, logging.Logger, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	opts := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
	}

	stop := func() {}
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, engine.WithMetrics(metrics.New(reg)))
		stop = serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	return engine.New(opts...), logger, stop, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func readFile(path, what string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no %s file given", what)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", what, err)
	}
	return string(bs), nil
}

func readGraph(path string) (*causal.CausalGraph, error) {
	g, err := graph.LoadJSON(path)
	if err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return g, nil
}

func printGraph(g *causal.CausalGraph) {
	fmt.Println("\n--- Causal Graph Results ---")
	fmt.Println("Nodes:")
	for _, node := range g.Nodes {
		fmt.Printf("  - %s\n", node.Label)
	}
	fmt.Println("\nDiscovered Edges:")
	if len(g.Edges) == 0 {
		fmt.Println("  No causal edges were found.")
	} else {
		for _, edge := range g.Edges {
			fmt.Printf("  - %s --> %s (lag: %d)\n", edge.Source, edge.Target, edge.Lag)
		}
	}
	fmt.Println("--------------------------")
}

func printEstimationResults(results *causal.EstimateResponse) {
	fmt.Printf("\n--- Causal Physics (Discovered Coefficients) ---\n")

	// map order is random
	nodes := make([]string, 0, len(results.Models))
	for node := range results.Models {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		model := results.Models[node]
		fmt.Printf("Node: %s\n", node)
		fmt.Printf("  Intercept: %.4f\n", model.Intercept)

		for i, feature := range model.Features {
			coeff := model.Coefficients[i]
			strength := ""
			if math.Abs(coeff) > 1.0 {
				strength = " (STRONG)"
			}
			fmt.Printf("  -> %s: %.4f%s\n", feature, coeff, strength)
		}

		fmt.Println("")
	}
}
