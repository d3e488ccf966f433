package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Replay orphaned EntityDeltas against Core to reconcile the hash chain",
	Long: `repair replays Soil's EntityDelta history against Core for every entity
flagged by the startup consistency check. A Core mutation missing its
EntityDelta entirely cannot be recovered this way and is reported
instead. Exit codes: 0 success, 1 inconsistencies remain, 2 unrecoverable.`,
	RunE: runRepair,
}

func runRepair(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Coord.Repair(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("repaired %d entities\n", len(res.Repaired))
	for _, id := range res.Repaired {
		fmt.Printf("  + %s\n", id)
	}
	if len(res.Unrecoverable) > 0 {
		fmt.Printf("%d unrecoverable:\n", len(res.Unrecoverable))
		for _, m := range res.Unrecoverable {
			fmt.Printf("  ! %s: %s\n", m.EntityID, m.Reason)
		}
		os.Exit(2)
	}

	mismatches, err := a.Coord.StartupConsistencyCheck()
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		os.Exit(1)
	}
	return nil
}
