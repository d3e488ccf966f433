package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepDryRun bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a fossilization pass over expired user relations and orphaned facts",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "report candidates without mutating anything")
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Relations.Sweep(context.Background(), sweepDryRun)
	if err != nil {
		return err
	}

	mode := "applied"
	if res.DryRun {
		mode = "dry-run"
	}
	fmt.Printf("sweep (%s): %d relations fossilized, %d facts degraded\n", mode, res.RelationsFossilized, res.FactsDegraded)
	for _, id := range res.FossilizedRelationIDs {
		fmt.Printf("  relation: %s\n", id)
	}
	for _, id := range res.OrphanedFactIDs {
		fmt.Printf("  orphaned fact: %s\n", id)
	}
	return nil
}
