package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/TALUS/internal/optimization"
	"github.com/copyleftdev/TALUS/internal/server"
	"github.com/copyleftdev/TALUS/internal/trace"
)

var (
	objectiveName   string
	acquisitionName string
	maximizerName   string
	iterations      int
	numSave         int
	saveDir         string
	runID           string
	seed            int64
	xi              float64
	beta            float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one optimization loop to completion",
	Long: `Runs the optimization loop against a benchmark objective and prints
the incumbent. Interrupting with Ctrl-C stops at the next iteration
boundary and keeps the observations gathered so far.`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().StringVar(&objectiveName, "objective", "sphere", "Benchmark objective (sphere, rastrigin, sinpoly)")
	runCmd.Flags().StringVar(&acquisitionName, "acquisition", "ei", "Acquisition function: ei, pi, ucb")
	runCmd.Flags().StringVar(&maximizerName, "maximizer", "grid", "Acquisition maximizer: grid, restart, cmaes, mayfly")
	runCmd.Flags().IntVar(&iterations, "iters", 30, "Number of loop iterations")
	runCmd.Flags().IntVar(&numSave, "num-save", 1, "Trace cadence in iterations (0 disables tracing)")
	runCmd.Flags().StringVar(&saveDir, "save-dir", "data", "Directory for trace output")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (default derived from the clock)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().Float64Var(&xi, "xi", 0.01, "Exploration margin for ei and pi")
	runCmd.Flags().Float64Var(&beta, "beta", 2.0, "Exploration weight for ucb")
	rootCmd.AddCommand(runCmd)
}

func runLoop(cmd *cobra.Command, args []string) error {
	obj, ok := server.LookupObjective(objectiveName)
	if !ok {
		return fmt.Errorf("unknown objective %q, have %v", objectiveName, server.ObjectiveNames())
	}

	spec := server.RunSpec{
		Objective:   objectiveName,
		Acquisition: acquisitionName,
		Maximizer:   maximizerName,
		Iterations:  iterations,
		Xi:          xi,
		Beta:        beta,
		Seed:        seed,
	}

	task, err := server.BuildTask(obj)
	if err != nil {
		return err
	}
	acq, err := server.BuildAcquisition(spec, obj.Goal)
	if err != nil {
		return err
	}
	max, err := server.BuildMaximizer(spec)
	if err != nil {
		return err
	}

	cfg := optimization.LoopConfig{
		NumIterations: iterations,
		NumSave:       numSave,
		RandomSeed:    seed,
		Goal:          obj.Goal,
		Logger:        logger,
	}

	if runID == "" {
		runID = fmt.Sprintf("run_%d", time.Now().UnixNano())
	}
	var writer *trace.Writer
	if numSave > 0 && saveDir != "" {
		writer, err = trace.NewWriter(saveDir, runID)
		if err != nil {
			return fmt.Errorf("creating trace writer: %w", err)
		}
		defer writer.Close()
		cfg.Recorder = writer
	}

	loop, err := optimization.NewLoop(task, server.BuildModel(spec, logger), acq, max, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting run", map[string]interface{}{
		"run_id":      runID,
		"objective":   objectiveName,
		"acquisition": acquisitionName,
		"maximizer":   maximizerName,
		"iterations":  iterations,
	})

	start := time.Now()
	result, err := loop.Run(ctx)
	elapsed := time.Since(start)

	if result != nil {
		fmt.Printf("objective=%s incumbent=%v value=%.6g observations=%d elapsed=%s\n",
			objectiveName, result.Incumbent.X, result.Incumbent.Value,
			result.Observations.Len(), elapsed.Round(time.Millisecond))
		if writer != nil {
			fmt.Printf("trace: %s\n", writer.Path())
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "run ended early: %v\n", err)
		return err
	}
	return nil
}
