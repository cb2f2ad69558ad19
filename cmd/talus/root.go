package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/TALUS/internal/logging"
)

var (
	logLevel string
	logger   *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "talus",
	Short: "Bayesian optimization of expensive black-box functions",
	Long: `TALUS fits a Gaussian process surrogate to observed evaluations and
picks the next point to try by maximizing an acquisition function.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(parseLevel(logLevel), os.Stderr)
	},
}

func parseLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.DebugLevel
	case "warn":
		return logging.WarnLevel
	case "error":
		return logging.ErrorLevel
	default:
		return logging.InfoLevel
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}
