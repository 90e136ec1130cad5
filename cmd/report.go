package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/siteopt/internal/config"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render the composite map and Pareto plots from saved outputs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, config.ModeOptimize)
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := env.Pipeline.Reports(ctx)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(os.Stdout, p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
