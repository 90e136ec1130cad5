// Package pipeline runs the two siteopt stages: prepare builds the patch
// table and composite from the input layers, optimize searches the table
// and writes the selection artifacts.
package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/config"
	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/raster"
	"github.com/sells-group/siteopt/internal/store"
)

// Files written by the prepare stage into the work directory.
const (
	PatchesFile   = "valid_patches.geojson"
	CompositeFile = "composite.asc"
	ExtentFile    = "extent.json"
)

// PlotsDir is the report subdirectory of the output directory.
const PlotsDir = "plots"

// Pipeline wires the stages to their inputs, outputs and run history.
type Pipeline struct {
	cfg    *config.Config
	source raster.Source
	store  store.Store

	// mu serializes stages that share the work and output directories.
	mu sync.Mutex
}

// New creates a Pipeline. st may be nil to skip run history.
func New(cfg *config.Config, src raster.Source, st store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, source: src, store: st}
}

// Store returns the run history store, which may be nil.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// Extent records the prepared grid for downstream stages and clients.
type Extent struct {
	CRS      string     `json:"crs"`
	Bounds   [4]float64 `json:"bounds"`
	GridSize float64    `json:"grid_size"`
	Rows     int        `json:"rows"`
	Cols     int        `json:"cols"`
	Patches  int        `json:"patches"`
	Dropped  int        `json:"dropped"`
}

func extentOf(t *grid.Table) Extent {
	return Extent{
		CRS:      t.CRS,
		Bounds:   [4]float64{t.Extent.Min(0), t.Extent.Min(1), t.Extent.Max(0), t.Extent.Max(1)},
		GridSize: t.GridSize,
		Rows:     t.Rows,
		Cols:     t.Cols,
		Patches:  t.Len(),
		Dropped:  t.Dropped,
	}
}

// LoadTable reads the prepared patch table from dir.
func LoadTable(dir string) (*grid.Table, error) {
	path := filepath.Join(dir, PatchesFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s (run prepare first)", path)
	}
	defer f.Close() //nolint:errcheck
	return grid.ReadGeoJSON(f)
}

// LoadExtent reads extent.json from dir.
func LoadExtent(dir string) (*Extent, error) {
	data, err := os.ReadFile(filepath.Join(dir, ExtentFile))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read extent")
	}
	var e Extent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode extent")
	}
	return &e, nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "pipeline: close %s", path)
}

func logger() *zap.Logger {
	return zap.L().With(zap.String("component", "pipeline"))
}
