package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"github.com/w-h-a/caus/internal/graph"
	"github.com/w-h-a/caus/internal/simulate"
)

// Generate writes synthetic data from the three-service chain and, when
// asked, its ground-truth graph.
func Generate(c *cli.Context) error {
	p := simulate.ServiceChain()

	ds, err := p.Generate(simulate.Options{
		T:      c.Int("t"),
		Seed:   c.Int64("seed"),
		BurnIn: c.Int("burn-in"),
	})
	if err != nil {
		return err
	}

	out := os.Stdout
	if path := c.String("out"); path != "" {
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}
	if err := ds.WriteCSV(out); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if path := c.String("truth"); path != "" {
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		if err := graph.WriteJSON(f, p.GroundTruth()); err != nil {
			return fmt.Errorf("failed to write ground truth: %w", err)
		}
	}

	return nil
}
