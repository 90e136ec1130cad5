package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/siteopt/internal/config"
	"github.com/sells-group/siteopt/internal/db"
	"github.com/sells-group/siteopt/internal/pipeline"
	"github.com/sells-group/siteopt/internal/publish"
)

var (
	publishTopN   int
	publishUpsert bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the top selections to a Postgres results table",
	Long:  "Reads the last optimization's selected_patches.csv and copies the best distinct patches into publish.table, creating it when missing.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if publishTopN > 0 {
			cfg.Publish.TopN = publishTopN
		}
		if cmd.Flags().Changed("upsert") {
			cfg.Publish.Upsert = publishUpsert
		}
		if err := cfg.Validate(config.ModePublish); err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := db.Connect(ctx, cfg.Publish.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Publish.MaxConns,
			MinConns: cfg.Publish.MinConns,
		})
		if err != nil {
			return eris.Wrap(err, "publish: connect")
		}
		defer pool.Close()

		pub, err := publish.New(pool, publish.Config{
			Table:    cfg.Publish.Table,
			TopN:     cfg.Publish.TopN,
			Geometry: cfg.Publish.Geometry,
			Upsert:   cfg.Publish.Upsert,
		})
		if err != nil {
			return err
		}
		if err := pub.EnsureTable(ctx); err != nil {
			return err
		}

		n, err := pipeline.New(cfg, nil, nil).Publish(ctx, pub)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Published %d rows to %s\n", n, cfg.Publish.Table)
		return nil
	},
}

func init() {
	publishCmd.Flags().IntVar(&publishTopN, "top", 0, "number of distinct patches to publish (default from config)")
	publishCmd.Flags().BoolVar(&publishUpsert, "upsert", false, "merge on patch_id instead of appending")
	rootCmd.AddCommand(publishCmd)
}
