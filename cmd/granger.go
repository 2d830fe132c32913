package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/w-h-a/caus/internal/dataset"
	"github.com/w-h-a/caus/internal/granger"
)

// Granger prints the pairwise Granger causality matrix, a baseline to hold
// the discovered graph against.
func Granger(c *cli.Context) error {
	ds, err := dataset.LoadCSV(c.String("data"), nil)
	if err != nil {
		return err
	}

	lags := c.Int("lag")
	if lags <= 0 {
		lags = 3
	}
	alpha := c.Float64("alpha")

	results, err := granger.Matrix(c.Context, ds, lags, alpha)
	if err != nil {
		return err
	}

	printGrangerCausality(results, ds.Labels(), alpha)
	return nil
}

func printGrangerCausality(results [][]*granger.Result, labels []string, alpha float64) {
	fmt.Println("\n=== Granger Causality Test Results ===")
	fmt.Println("Null Hypothesis: Variable X does NOT Granger-cause Variable Y")
	fmt.Printf("Significance level: α = %.2f\n", alpha)
	fmt.Println()

	fmt.Printf("%-20s -> %-20s | F-Statistic | P-Value  | Conclusion\n", "Cause", "Effect")
	fmt.Println("------------------------------------------------------------------------------------")

	for i := range labels {
		for j := range labels {
			result := results[i][j]
			if i == j || result == nil {
				continue
			}

			conclusion := "No causality"
			if result.Significant {
				conclusion = "GRANGER-CAUSES"
			}

			fmt.Printf("%-20s -> %-20s | %11.4f | %8.6f | %s\n",
				result.Cause, result.Effect, result.FStatistic, result.PValue, conclusion)
		}
	}
	fmt.Println()
}
