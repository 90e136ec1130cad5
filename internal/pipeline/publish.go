package pipeline

import (
	"context"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/publish"
	"github.com/sells-group/siteopt/internal/result"
)

// Publish uploads the last optimize stage's records, with their cell
// geometry restored from the patch table.
func (p *Pipeline) Publish(ctx context.Context, pub *publish.Publisher) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	table, err := LoadTable(p.cfg.Data.WorkDir)
	if err != nil {
		return 0, err
	}
	records, err := p.readRecords()
	if err != nil {
		return 0, err
	}
	for i := range records {
		patch, ok := table.Lookup(records[i].PatchID)
		if !ok {
			return 0, apperr.Input("pipeline: published patch %d is not in the patch table", records[i].PatchID)
		}
		records[i].Geometry = patch.Polygon
	}
	rep := &result.Report{SourceCRS: table.CRS, ReportCRS: p.cfg.Report.CRS, Records: records}
	return pub.Publish(ctx, rep)
}
