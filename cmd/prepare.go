package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/siteopt/internal/config"
)

var (
	prepareDataDir  string
	prepareGridSize float64
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Build the patch grid and composite from the input layers",
	Long:  "Loads the study area and suitability layers, aggregates them into grid patches and writes valid_patches.geojson, composite.asc and extent.json to the work directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if prepareDataDir != "" {
			cfg.Data.Dir = prepareDataDir
		}
		if prepareGridSize > 0 {
			cfg.Grid.Size = prepareGridSize
		}

		ctx := cmd.Context()
		env, err := initPipeline(ctx, config.ModePrepare)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Prepare(ctx)
		if err != nil {
			return err
		}
		formatPrepare(os.Stdout, res)
		return nil
	},
}

func init() {
	prepareCmd.Flags().StringVar(&prepareDataDir, "data-dir", "", "directory holding the input layers (default from config)")
	prepareCmd.Flags().Float64Var(&prepareGridSize, "grid-size", 0, "patch edge length in CRS units (default from config)")
	rootCmd.AddCommand(prepareCmd)
}
