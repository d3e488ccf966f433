package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run the startup consistency scan and report any inconsistencies",
	RunE:  runDiagnose,
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mismatches, err := a.Coord.StartupConsistencyCheck()
	if err != nil {
		return err
	}

	fmt.Printf("system status: %s\n", a.Coord.Status())
	if len(mismatches) == 0 {
		fmt.Println("no inconsistencies found")
		return nil
	}
	fmt.Printf("%d inconsistencies found:\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  - %s: %s\n", m.EntityID, m.Reason)
	}
	os.Exit(1)
	return nil
}
