package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
	"github.com/w-h-a/caus/internal/graph"
)

func Discover(c *cli.Context) error {
	ctx := c.Context

	// 1. Parse inputs
	csvData, err := readFile(c.String("data"), "data")
	if err != nil {
		return err
	}

	req := &causal.DiscoverRequest{
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

	logger.Info("starting discovery", "data", c.String("data"), "max_lag", req.MaxLag, "pc_alpha", req.PcAlpha)

	// 3. Run Discover
	g, err := svc.Discover(ctx, req)
	if err != nil {
		return err
	}

	// 4. Print graph (json or pretty)
	if c.Bool("json") {
		return graph.WriteJSON(os.Stdout, g)
	}
	printGraph(g)

	return nil
}
