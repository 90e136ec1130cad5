// Package grid partitions a study area into square cells and summarises each
// raster layer per cell, producing the candidate patch table.
package grid

import (
	"context"
	"math"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/raster"
)

// Cell is one square of the study-area partition before validation.
type Cell struct {
	ID     int
	Row    int
	Col    int
	Bounds *geom.Bounds
}

// Builder computes patch tables from a set of co-registered layers.
type Builder struct {
	layers   map[string]*raster.Layer
	required []string
	extent   string
	workers  int
}

// Option customises a Builder.
type Option func(*Builder)

// WithRequired overrides the layers that every valid patch must cover.
func WithRequired(names ...string) Option {
	return func(b *Builder) { b.required = names }
}

// WithExtentLayer selects the layer whose bounds define the grid.
func WithExtentLayer(name string) Option {
	return func(b *Builder) { b.extent = name }
}

// WithWorkers caps the number of goroutines computing zonal statistics.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBuilder validates that every required layer is present and that every
// supplied layer is co-registered with the extent layer.
func NewBuilder(layers map[string]*raster.Layer, opts ...Option) (*Builder, error) {
	b := &Builder{
		layers:   layers,
		required: raster.RequiredLayers,
		extent:   raster.StudyArea,
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.required) == 0 {
		return nil, apperr.Config("grid: no required layers")
	}

	ref, ok := layers[b.extent]
	if !ok {
		return nil, apperr.Input("grid: missing extent layer %q", b.extent)
	}
	if !ref.Transform.IsNorthUp() {
		return nil, apperr.Input("grid: extent layer %q is not north-up", b.extent)
	}
	for _, name := range b.required {
		l, ok := layers[name]
		if !ok {
			return nil, apperr.Input("grid: missing required layer %q", name)
		}
		if err := ref.CheckAligned(l); err != nil {
			return nil, err
		}
	}
	// optional layers are summarised too, so they must share the grid
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ref.CheckAligned(layers[name]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Cells partitions the extent into rows*cols squares of gridSize, numbered
// row-major with row 0 at the top. The grid is anchored at the lower-left
// corner; cells are clipped to the extent when gridSize exceeds it.
func (b *Builder) Cells(gridSize float64) ([]Cell, int, int, error) {
	if gridSize <= 0 || math.IsNaN(gridSize) || math.IsInf(gridSize, 0) {
		return nil, 0, 0, apperr.Config("grid: grid_size must be positive, got %g", gridSize)
	}
	ext := b.layers[b.extent].Bounds()
	left, bottom, right, top := ext.Min(0), ext.Min(1), ext.Max(0), ext.Max(1)

	cols := max(1, int(math.Floor((right-left)/gridSize)))
	rows := max(1, int(math.Floor((top-bottom)/gridSize)))

	cells := make([]Cell, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x0 := left + float64(col)*gridSize
			y0 := bottom + float64(rows-row-1)*gridSize
			cells = append(cells, Cell{
				ID:  row*cols + col,
				Row: row,
				Col: col,
				Bounds: geom.NewBounds(geom.XY).Set(
					x0, y0, math.Min(x0+gridSize, right), math.Min(y0+gridSize, top),
				),
			})
		}
	}
	return cells, rows, cols, nil
}

// Build computes the patch table for gridSize. Cells lacking valid pixels in
// any required layer are dropped and counted. The returned table is frozen.
func (b *Builder) Build(ctx context.Context, gridSize float64) (*Table, error) {
	cells, rows, cols, err := b.Cells(gridSize)
	if err != nil {
		return nil, err
	}
	ref := b.layers[b.extent]

	names := make([]string, 0, len(b.layers))
	for name := range b.layers {
		names = append(names, name)
	}
	sort.Strings(names)

	patches := make([]*Patch, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			patches[i] = b.summarise(cells[i], names)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "grid: zonal statistics")
	}

	valid := make([]*Patch, 0, len(patches))
	for _, p := range patches {
		if p != nil {
			valid = append(valid, p)
		}
	}

	t := newTable(ref.CRS, gridSize, rows, cols, ref.Bounds(), b.required, valid, len(cells)-len(valid))
	zap.L().Info("grid: built patch table",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("cells", len(cells)),
		zap.Int("valid", t.Len()),
		zap.Int("dropped", t.Dropped),
	)
	return t, nil
}

// summarise averages every layer over the cell, or returns nil when any
// required layer has no valid pixel inside it.
func (b *Builder) summarise(c Cell, names []string) *Patch {
	stats := make(map[string]float64, len(names))
	for _, name := range names {
		mean, n := ZonalMean(b.layers[name], c.Bounds)
		if n > 0 {
			stats[name] = mean
		}
	}
	for _, name := range b.required {
		if _, ok := stats[name]; !ok {
			return nil
		}
	}
	return NewPatch(c.ID, c.Row, c.Col, c.Bounds, stats)
}

// ZonalMean averages the valid pixels of l whose centres fall inside bounds,
// using half-open intervals so adjacent cells never share a pixel. It
// returns the mean and the number of pixels used.
func ZonalMean(l *raster.Layer, bounds *geom.Bounds) (float64, int) {
	t := l.Transform
	pw, ph := t.A, -t.E

	c0 := int(math.Ceil((bounds.Min(0)-t.C)/pw - 0.5))
	c1 := int(math.Ceil((bounds.Max(0)-t.C)/pw - 0.5))
	r0 := int(math.Floor((t.F-bounds.Max(1))/ph-0.5)) + 1
	r1 := int(math.Floor((t.F-bounds.Min(1))/ph - 0.5))

	c0, c1 = max(c0, 0), min(c1, l.Cols)
	r0, r1 = max(r0, 0), min(r1, l.Rows-1)

	var sum float64
	var n int
	for r := r0; r <= r1; r++ {
		for c := c0; c < c1; c++ {
			v := l.At(r, c)
			if !l.IsValidValue(v) {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}
