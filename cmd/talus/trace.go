package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/TALUS/internal/trace"
)

var traceDir string

var traceCmd = &cobra.Command{
	Use:   "trace <run-id>",
	Short: "Print the persisted trace of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := trace.ReadAll(traceDir, args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("iter=%d incumbent=%v value=%.6g eval=%.3gs overhead=%.3gs\n",
				e.Iteration, e.Incumbent, e.IncumbentValue, e.TimeFunction, e.OptimizerOverhead)
		}
		return nil
	},
}

func init() {
	traceCmd.Flags().StringVar(&traceDir, "save-dir", "data", "Directory holding trace output")
	rootCmd.AddCommand(traceCmd)
}
