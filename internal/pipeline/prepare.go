package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/mcda"
	"github.com/sells-group/siteopt/internal/raster"
)

// PrepareResult summarises the prepare stage.
type PrepareResult struct {
	Extent Extent   `json:"extent"`
	Cells  int      `json:"cells"`
	Files  []string `json:"files"`
}

// Prepare loads the layers, builds the patch table and composite and
// writes them to the work directory.
func (p *Pipeline) Prepare(ctx context.Context) (*PrepareResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger().With(zap.String("stage", "prepare"))
	layers, err := raster.LoadAll(ctx, p.source, raster.RequiredLayers)
	if err != nil {
		return nil, err
	}

	b, err := grid.NewBuilder(layers, grid.WithWorkers(p.cfg.Grid.Workers))
	if err != nil {
		return nil, err
	}
	table, err := b.Build(ctx, p.cfg.Grid.Size)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		log.Warn("no valid patches; optimize will reject this table", zap.Int("dropped", table.Dropped))
	}

	comp, err := mcda.Composite(layers, raster.StudyArea, p.cfg.Composite.MCDAWeights())
	if err != nil {
		return nil, err
	}

	dir := p.cfg.Data.WorkDir
	ext := extentOf(table)
	res := &PrepareResult{Extent: ext, Cells: table.Cells()}
	steps := []struct {
		name string
		fn   func(f *os.File) error
	}{
		{PatchesFile, func(f *os.File) error { return grid.WriteGeoJSON(f, table) }},
		{CompositeFile, func(f *os.File) error { return raster.WriteASCII(f, comp.Normalized) }},
		{ExtentFile, func(f *os.File) error {
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			return enc.Encode(ext)
		}},
	}
	for _, s := range steps {
		path := filepath.Join(dir, s.name)
		if err := writeFile(path, s.fn); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
	}

	log.Info("prepare complete",
		zap.Int("patches", ext.Patches),
		zap.Int("dropped", ext.Dropped),
		zap.Int("cells", res.Cells),
		zap.String("dir", dir),
	)
	return res, nil
}
