package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/siteopt/internal/config"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run prepare and optimize in sequence",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyOptimizeFlags()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModePrepare); err != nil {
			return err
		}
		env, err := initPipeline(ctx, config.ModeOptimize)
		if err != nil {
			return err
		}
		defer env.Close()

		prep, opt, err := env.Pipeline.Run(ctx, cfg.Optimizer.Params())
		if prep != nil {
			formatPrepare(os.Stdout, prep)
		}
		if err != nil {
			return err
		}
		formatOptimize(os.Stdout, opt, optimizeTop)
		return nil
	},
}

func init() {
	addOptimizeFlags(pipelineCmd)
	rootCmd.AddCommand(pipelineCmd)
}
