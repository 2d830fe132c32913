package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	causal "github.com/w-h-a/caus/api/causal/v1alpha1"
)

// variable * 1.2 or variable = 500
var interventionRe = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)\s*(\*|=)\s*(-?[0-9.]+)$`)

func Simulate(c *cli.Context) error {
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

	var intervention *causal.Intervention
	if do := c.String("do"); do != "" {
		intervention, err = ParseIntervention(do)
		if err != nil {
			return err
		}
	}

	// 2. Build service
	svc, logger, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()

	logger.Info("starting simulation", "data", c.String("data"), "do", c.String("do"), "horizon", c.Int("horizon"))

	// 3. Run Simulate
	result, err := svc.Simulate(ctx, &causal.SimulateRequest{
		CsvData:      csvData,
		Graph:        g,
		Intervention: intervention,
		Horizon:      c.Int("horizon"),
	})
	if err != nil {
		return err
	}

	// 4. Display results
	effect := c.String("effect")
	if effect == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	return printEffectSpecificResults(result, intervention, effect)
}

// ParseIntervention reads "variable * 1.2" (scale) or "variable = 500" (set).
func ParseIntervention(input string) (*causal.Intervention, error) {
	matches := interventionRe.FindStringSubmatch(strings.TrimSpace(input))
	if len(matches) != 4 {
		return nil, fmt.Errorf("got invalid intervention format '%s', wanted 'variable * 1.2' or 'variable = 500'", input)
	}

	target := matches[1]
	op := matches[2]

	val, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number: %s", matches[3])
	}

	i := &causal.Intervention{
		TargetNode: target,
	}

	switch op {
	case "*":
		// new = old * (1 + value)
		i.Action = causal.ActionIncreaseByPercent
		i.Value = val - 1.0
	case "=":
		i.Action = causal.ActionSetToFixed
		i.Value = val
	}

	return i, nil
}

func printEffectSpecificResults(result *causal.SimulateResponse, intervention *causal.Intervention, effect string) error {
	data, ok := result.Metrics[effect]
	if !ok {
		return fmt.Errorf("effect variable '%s' was not found in simulation results", effect)
	}

	count := float64(len(data.Original))
	if count == 0 {
		return fmt.Errorf("no data was found for effect variable '%s'", effect)
	}

	var totalOrig, totalSim float64
	for i := range data.Original {
		totalOrig += data.Original[i]
		totalSim += data.Simulated[i]
	}

	avgOrig := totalOrig / count
	avgSim := totalSim / count
	delta := avgSim - avgOrig

	var pctChangeStr string
	if math.Abs(avgOrig) < 1e-9 {
		if math.Abs(delta) < 1e-9 {
			pctChangeStr = "0.00%"
		} else {
			pctChangeStr = "N/A" // undefined change from zero
		}
	} else {
		pctChangeStr = fmt.Sprintf("%.2f%%", delta/avgOrig*100)
	}

	fmt.Printf("\n--- Simulation Report ---\n")

	action := "none"
	if intervention != nil {
		switch intervention.Action {
		case causal.ActionIncreaseByPercent:
			action = fmt.Sprintf("Scaling %s by %.1f%%", intervention.TargetNode, intervention.Value*100)
		case causal.ActionSetToFixed:
			action = fmt.Sprintf("Setting %s to %.2f", intervention.TargetNode, intervention.Value)
		}
	}
	fmt.Printf("Intervention: %s\n", action)
	fmt.Printf("Effect:       %s\n", effect)
	fmt.Println("---------------------------------")

	fmt.Printf("Baseline Average:     %.2f\n", avgOrig)
	fmt.Printf("Counterfactual Avg:   %.2f\n", avgSim)

	sign := ""
	if delta > 0 {
		sign = "+"
	}
	fmt.Printf("Net Impact:           %s%.2f (%s)\n", sign, delta, pctChangeStr)
	fmt.Println("---------------------------------")

	return nil
}
