package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/siteopt/internal/config"
)

var (
	optimizeRuns int
	optimizeSeed uint64
	optimizeTop  int
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search the prepared patches for Pareto-optimal sites",
	Long:  "Runs independent NSGA-II searches over the prepared patch table, selects spatially separated sites from each final front and writes the exports. Interrupting the command keeps the runs that already finished.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyOptimizeFlags()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeOptimize)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Optimize(ctx, cfg.Optimizer.Params())
		if err != nil {
			return err
		}
		formatOptimize(os.Stdout, res, optimizeTop)
		return nil
	},
}

func applyOptimizeFlags() {
	if optimizeRuns > 0 {
		cfg.Optimizer.NumRuns = optimizeRuns
	}
	if optimizeSeed > 0 {
		cfg.Optimizer.Seed = optimizeSeed
	}
}

func addOptimizeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&optimizeRuns, "runs", 0, "number of independent runs (default from config)")
	cmd.Flags().Uint64Var(&optimizeSeed, "seed", 0, "base random seed (default from config, 0 = random)")
	cmd.Flags().IntVar(&optimizeTop, "top", 10, "number of records to print")
}

func init() {
	addOptimizeFlags(optimizeCmd)
	rootCmd.AddCommand(optimizeCmd)
}
