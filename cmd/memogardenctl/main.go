// Command memogardenctl is the operator-facing CLI for the maintenance
// operations (diagnose, repair, sweep): a single cobra entrypoint split
// across one file per subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/memogarden/memogarden/internal/app"
	"github.com/memogarden/memogarden/internal/config"
)

var (
	cfgFile string
	profile string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memogardenctl",
	Short: "Operate a MemoGarden substrate: diagnose, repair, sweep",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "resource profile (embedded|standard)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(diagnoseCmd, repairCmd, sweepCmd)
}

func openApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile, profile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.Open(cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
