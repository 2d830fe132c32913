package cmd

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
)

func Estimate(c *cli.Context) error {
	ctx := c.Context

	// 1. Parse inputs
	csvData, err := readFile(c.String("data"), "data")
	if err != nil {
		return err
	}
	g, err := readGraph(c.String("graph"))
	if err != nil {
		return err
	}

	// 2. Build service
	svc, logger, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()

	logger.Info("starting estimation", "data", c.String("data"), "edges", len(g.Edges))

	// 3. Run Estimate
	results, err := svc.Estimate(ctx, &causal.EstimateRequest{CsvData: csvData, Graph: g})
	if err != nil {
		return err
	}

	// 4. Display results
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printEstimationResults(results)

	return nil
}
