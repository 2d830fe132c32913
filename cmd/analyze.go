package cmd

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
)

// Analyze discovers the graph and fits it in one pass.
func Analyze(c *cli.Context) error {
	ctx := c.Context

	// 1. Parse inputs
	csvData, err := readFile(c.String("data"), "data")
	if err != nil {
		return err
	}

	req := &causal.AnalyzeRequest{
		CsvData: csvData,
		MaxLag:  c.Int("lag"),
		PcAlpha: c.Float64("alpha"),
	}

	// 2. Build service
	svc, logger, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()

	logger.Info("starting analysis", "data", c.String("data"), "max_lag", req.MaxLag, "pc_alpha", req.PcAlpha)

	// 3. Run Analyze
	result, err := svc.Analyze(ctx, req)
	if err != nil {
		return err
	}

	// 4. Print results
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printGraph(result.Graph)
	printEstimationResults(result.Estimate)

	return nil
}
