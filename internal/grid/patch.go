package grid

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// Patch is a valid grid cell with its per-layer statistics. Patches are
// immutable once the table is built.
type Patch struct {
	ID        int
	Row       int
	Col       int
	Polygon   *geom.Polygon
	CentroidX float64
	CentroidY float64
	stats     map[string]float64
}

// NewPatch builds a patch whose polygon is the rectangle of bounds.
func NewPatch(id, row, col int, bounds *geom.Bounds, stats map[string]float64) *Patch {
	minX, minY, maxX, maxY := bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, []int{10})

	cp := make(map[string]float64, len(stats))
	for k, v := range stats {
		cp[k] = v
	}
	return &Patch{
		ID:        id,
		Row:       row,
		Col:       col,
		Polygon:   poly,
		CentroidX: (minX + maxX) / 2,
		CentroidY: (minY + maxY) / 2,
		stats:     cp,
	}
}

// Bounds returns the cell's extent.
func (p *Patch) Bounds() *geom.Bounds {
	return p.Polygon.Bounds()
}

// Stat returns the cell statistic for a layer.
func (p *Patch) Stat(layer string) (float64, bool) {
	v, ok := p.stats[layer]
	return v, ok
}

// Layers lists the layers that have a statistic, sorted by name.
func (p *Patch) Layers() []string {
	names := make([]string, 0, len(p.stats))
	for k := range p.stats {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
