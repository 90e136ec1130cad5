package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/export"
	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/proj"
	"github.com/sells-group/siteopt/internal/result"
	"github.com/sells-group/siteopt/internal/store"
)

// OptimizeResult summarises the optimize stage.
type OptimizeResult struct {
	RunID     string              `json:"run_id,omitempty"`
	Patches   int                 `json:"patches"`
	Runs      int                 `json:"runs"`
	Cancelled bool                `json:"cancelled"`
	Records   []result.Record     `json:"records"`
	Files     []string            `json:"files"`
	Report    *result.Report      `json:"-"`
	Outcome   *optimize.Outcome   `json:"-"`
	Listings  []export.RunListing `json:"-"`
}

// Optimize runs the search over the prepared table with params, aggregates
// the selections, writes the exports and records the run. A cancelled
// search still reports the runs that completed.
func (p *Pipeline) Optimize(ctx context.Context, params optimize.Params) (*OptimizeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger().With(zap.String("stage", "optimize"))
	start := time.Now()

	table, err := LoadTable(p.cfg.Data.WorkDir)
	if err != nil {
		return nil, err
	}
	orch, err := optimize.New(table, params)
	if err != nil {
		return nil, err
	}

	res := &OptimizeResult{Patches: table.Len()}
	if p.store != nil {
		run, err := p.store.CreateRun(context.WithoutCancel(ctx), params)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		res.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	if err := p.optimize(ctx, table, orch, res); err != nil {
		p.finish(res, store.Summary{Status: store.RunStatusFailed, Patches: res.Patches, Error: err.Error()}, nil)
		return nil, err
	}

	status := store.RunStatusComplete
	if res.Cancelled {
		status = store.RunStatusCancelled
	}
	p.finish(res, store.Summary{Status: status, Patches: res.Patches, Runs: res.Runs}, res.Records)

	log.Info("optimize complete",
		zap.Int("patches", res.Patches),
		zap.Int("runs", res.Runs),
		zap.Int("records", len(res.Records)),
		zap.Bool("cancelled", res.Cancelled),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) optimize(ctx context.Context, table *grid.Table, orch *optimize.Orchestrator, res *OptimizeResult) error {
	out, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	res.Outcome = out
	res.Runs = len(out.Runs)
	res.Cancelled = out.Cancelled

	tr, err := proj.NewTransformer(table.CRS, p.cfg.Report.CRS)
	if err != nil {
		return err
	}
	rep, err := result.Aggregate(table, out.Combined, tr)
	if err != nil {
		return err
	}
	if p.cfg.Report.Dedupe {
		rep.Records = result.Dedupe(rep.Records)
	}
	res.Report = rep
	res.Records = rep.Records
	res.Listings = export.Listings(out.Runs)

	files, err := export.WriteAll(p.cfg.Report.OutputDir, rep, out.Runs)
	if err != nil {
		return err
	}
	res.Files = files

	if p.cfg.Report.Plots {
		plots, err := p.renderReports(table, rep.Records, res.Listings, orch.Objectives().Names)
		if err != nil {
			return err
		}
		res.Files = append(res.Files, plots...)
	}
	return nil
}

// Run executes prepare then optimize.
func (p *Pipeline) Run(ctx context.Context, params optimize.Params) (*PrepareResult, *OptimizeResult, error) {
	prep, err := p.Prepare(ctx)
	if err != nil {
		return nil, nil, err
	}
	opt, err := p.Optimize(ctx, params)
	if err != nil {
		return prep, nil, err
	}
	return prep, opt, nil
}

// finish records the outcome under its own timeout, independent of the
// search context.
func (p *Pipeline) finish(res *OptimizeResult, summary store.Summary, records []result.Record) {
	if p.store == nil || res.RunID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.store.FinishRun(ctx, res.RunID, summary, records); err != nil {
		logger().Warn("failed to record run", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
