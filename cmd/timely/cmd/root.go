package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timelyprogress/pkg/config"
	"github.com/timelyprogress/pkg/telemetry"
	"github.com/timelyprogress/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded once in PersistentPreRunE, read by subcommands.
	logger       utils.Logger
	engineConfig *config.EngineConfig

	telemetryShutdown telemetry.ShutdownFunc = func(context.Context) error { return nil }
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "timely",
	Short: "A demo driver for the timely-dataflow progress-tracking engine",
	Long: `timely drives the subgraph progress engine through one of a handful of
canned topologies, tick by tick, and prints the frontier changes that
result. It exists to exercise the engine end to end, not to run real
dataflow operators.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		engineConfig = cfg

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		if cfg.Telemetry.Enabled {
			shutdown, err := telemetry.Init(context.Background())
			if err != nil {
				logger.Warn("failed to initialize telemetry: %v", err)
			} else {
				telemetryShutdown = shutdown
				logger.Info("telemetry enabled")
			}
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return telemetryShutdown(context.Background())
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (defaults to ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug-level) logging")

	binName := BinName()
	rootCmd.Example = `  # Drive the straight-line topology to quiescence
  ` + binName + ` run --topology straight-line

  # Drive a feedback loop, logging every tick
  ` + binName + ` run --topology feedback-loop -v

  # Use a config file to raise the reachability iteration bound
  ` + binName + ` run --topology pipeline -c ./config.yaml`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// GetEngineConfig returns the loaded configuration.
func GetEngineConfig() *config.EngineConfig {
	return engineConfig
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
