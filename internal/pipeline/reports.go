package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/export"
	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/mcda"
	"github.com/sells-group/siteopt/internal/raster"
	"github.com/sells-group/siteopt/internal/report"
	"github.com/sells-group/siteopt/internal/result"
)

// Reports re-renders the plots from the prepared work directory and the
// artifacts of the last optimize stage.
func (p *Pipeline) Reports(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	table, err := LoadTable(p.cfg.Data.WorkDir)
	if err != nil {
		return nil, err
	}
	records, err := p.readRecords()
	if err != nil {
		return nil, err
	}
	listings, err := p.readListings()
	if err != nil {
		return nil, err
	}
	return p.renderReports(table, records, listings, p.cfg.Optimizer.Params().Objectives)
}

// PlotPath returns the path of a rendered plot by file name.
func (p *Pipeline) PlotPath(name string) string {
	return filepath.Join(p.cfg.Report.OutputDir, PlotsDir, filepath.Base(name))
}

func (p *Pipeline) renderReports(table *grid.Table, records []result.Record, listings []export.RunListing, names []string) ([]string, error) {
	ext, err := LoadExtent(p.cfg.Data.WorkDir)
	if err != nil {
		return nil, err
	}
	composite, err := readComposite(filepath.Join(p.cfg.Data.WorkDir, CompositeFile), ext.CRS)
	if err != nil {
		return nil, err
	}

	outlines := make([]*geom.Polygon, 0, len(records))
	for _, r := range records {
		patch, ok := table.Lookup(r.PatchID)
		if !ok {
			return nil, apperr.Input("pipeline: selected patch %d is not in the patch table", r.PatchID)
		}
		outlines = append(outlines, patch.Polygon)
	}

	dir := filepath.Join(p.cfg.Report.OutputDir, PlotsDir)
	compositePath := filepath.Join(dir, report.CompositeFile)
	if err := report.Composite(compositePath, composite, outlines); err != nil {
		return nil, err
	}
	pareto, err := report.ParetoPairs(dir, listings, names)
	if err != nil {
		return nil, err
	}
	return append([]string{compositePath}, pareto...), nil
}

func readComposite(path, crs string) (*raster.Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return raster.ReadASCII(f, mcda.CompositeName, crs)
}

func (p *Pipeline) readRecords() ([]result.Record, error) {
	path := filepath.Join(p.cfg.Report.OutputDir, export.CSVFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s (run optimize first)", path)
	}
	defer f.Close() //nolint:errcheck
	return export.ReadCSV(f)
}

func (p *Pipeline) readListings() ([]export.RunListing, error) {
	path := filepath.Join(p.cfg.Report.OutputDir, export.RunsFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s (run optimize first)", path)
	}
	defer f.Close() //nolint:errcheck
	return export.ReadRuns(f)
}
