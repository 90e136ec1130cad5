package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "siteopt",
	Short:         "Multi-objective site selection over suitability rasters",
	Long:          "Builds a patch grid over co-registered suitability layers, searches it with NSGA-II for well-spread Pareto-optimal sites, and exports, plots, stores and publishes the selections.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is normal outside development
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, apperr.Describe(err))
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error kind to the process exit status.
func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		return 2
	case apperr.KindConfig:
		return 3
	default:
		return 1
	}
}
