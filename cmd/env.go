package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/config"
	"github.com/sells-group/siteopt/internal/db"
	"github.com/sells-group/siteopt/internal/pipeline"
	"github.com/sells-group/siteopt/internal/raster"
	"github.com/sells-group/siteopt/internal/resilience"
	"github.com/sells-group/siteopt/internal/store"
)

// pipelineEnv bundles the pipeline with the resources it owns.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

// Close releases the run history store.
func (e *pipelineEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initPipeline validates cfg for mode and wires the layer source and run
// history store.
func initPipeline(ctx context.Context, mode config.Mode) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	src, err := initSource(ctx)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if mode != config.ModePrepare {
		st, err = initStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	return &pipelineEnv{Pipeline: pipeline.New(cfg, src, st), Store: st}, nil
}

// initSource returns an HTTP source when data.base_url is set and a
// directory source otherwise.
func initSource(ctx context.Context) (raster.Source, error) {
	if cfg.Data.BaseURL == "" {
		return raster.NewDirSource(cfg.Data.Dir, cfg.Data.CRS)
	}
	return raster.NewHTTPSource(ctx, cfg.Data.BaseURL, cfg.Data.CRS, raster.HTTPOptions{
		Timeout:           time.Duration(cfg.Data.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Data.RequestsPerSecond,
		Retry:             resilience.DefaultPolicy(),
	})
}

// initStore opens and migrates the configured run history store. The
// none driver disables history and returns a nil store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{})
	default:
		return nil, apperr.Config("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
