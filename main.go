package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/w-h-a/caus/cmd"
)

func main() {
	dataFlag := &cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "CSV file, header row then one column per variable", Required: true}
	graphFlag := &cli.StringFlag{Name: "graph", Aliases: []string{"g"}, Usage: "causal graph JSON, as written by discover --json", Required: true}
	lagFlag := &cli.IntFlag{Name: "lag", Aliases: []string{"l"}, Usage: "maximum time lag, 0 uses the configured default"}
	alphaFlag := &cli.Float64Flag{Name: "alpha", Aliases: []string{"a"}, Usage: "significance level, 0 picks one automatically"}
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "print machine-readable JSON"}

	app := &cli.App{
		Name:  "caus",
		Usage: "causal discovery and linear causal models for service metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"CAUS_CONFIG"}},
			&cli.IntFlag{Name: "workers", Usage: "worker pool size, 0 uses every CPU"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-request deadline, e.g. 30s", Value: 5 * time.Minute},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"CAUS_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address, e.g. :9090"},
			&cli.IntFlag{Name: "max-conditioning", Usage: "largest conditioning set tried by the skeleton phase"},
			&cli.BoolFlag{Name: "contemporaneous", Usage: "also test lag-0 links"},
		},
		Commands: []*cli.Command{
			{
				Name:   "discover",
				Usage:  "discover the lagged causal graph of a table",
				Flags:  []cli.Flag{dataFlag, lagFlag, alphaFlag, jsonFlag},
				Action: cmd.Discover,
			},
			{
				Name:   "estimate",
				Usage:  "fit one linear model per variable on a known graph",
				Flags:  []cli.Flag{dataFlag, graphFlag, jsonFlag},
				Action: cmd.Estimate,
			},
			{
				Name:   "analyze",
				Usage:  "discover and estimate in one pass",
				Flags:  []cli.Flag{dataFlag, lagFlag, alphaFlag, jsonFlag},
				Action: cmd.Analyze,
			},
			{
				Name:  "simulate",
				Usage: "project the fitted models forward under an intervention",
				Flags: []cli.Flag{
					dataFlag,
					graphFlag,
					&cli.StringFlag{Name: "do", Usage: "intervention, e.g. 'api_latency * 1.2' or 'db_load = 500'"},
					&cli.IntFlag{Name: "horizon", Usage: "steps to project, 0 uses the default"},
					&cli.StringFlag{Name: "effect", Usage: "report the average impact on this variable instead of JSON"},
				},
				Action: cmd.Simulate,
			},
			{
				Name:  "generate",
				Usage: "write synthetic data from the three-service chain",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "t", Usage: "rows to write", Value: 1000},
					&cli.Int64Flag{Name: "seed", Usage: "random seed", Value: 42},
					&cli.IntFlag{Name: "burn-in", Usage: "rows to discard before writing", Value: 100},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "CSV output file, stdout when empty"},
					&cli.StringFlag{Name: "truth", Usage: "also write the ground-truth graph JSON here"},
				},
				Action: cmd.Generate,
			},
			{
				Name:  "granger",
				Usage: "pairwise Granger causality tests",
				Flags: []cli.Flag{
					dataFlag,
					lagFlag,
					&cli.Float64Flag{Name: "alpha", Aliases: []string{"a"}, Usage: "significance level", Value: 0.05},
				},
				Action: cmd.Granger,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
