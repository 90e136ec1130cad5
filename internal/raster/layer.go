// Package raster holds co-registered numeric grids and the sources that load them.
package raster

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteopt/internal/apperr"
)

// Layer names expected by the site selector.
const (
	StudyArea            = "study_area"
	Slope                = "slope"
	LandcoverSuitability = "landcoverSuitability"
	Soil                 = "soil"
	UrbanProximity       = "urbanProximity"
	FloodRisk            = "floodRisk"
)

// RequiredLayers lists every layer a full site-selection run needs.
var RequiredLayers = []string{StudyArea, Slope, LandcoverSuitability, Soil, UrbanProximity, FloodRisk}

// ObjectiveLayers lists the suitability objectives in their canonical order.
var ObjectiveLayers = []string{LandcoverSuitability, Slope, Soil, FloodRisk, UrbanProximity}

// Affine maps pixel (col, row) to map coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NorthUp builds the transform of an unrotated grid whose top-left corner is
// (left, top) with square pixels of the given size.
func NorthUp(left, top, pixelSize float64) Affine {
	return Affine{A: pixelSize, C: left, E: -pixelSize, F: top}
}

// IsNorthUp reports whether the transform has no rotation terms and rows run southwards.
func (a Affine) IsNorthUp() bool {
	return a.B == 0 && a.D == 0 && a.A > 0 && a.E < 0
}

// PixelCenter returns the map coordinate of the centre of pixel (row, col).
func (a Affine) PixelCenter(row, col int) (float64, float64) {
	c, r := float64(col)+0.5, float64(row)+0.5
	return a.A*c + a.B*r + a.C, a.D*c + a.E*r + a.F
}

// Layer is a single-band numeric grid with its georeferencing.
type Layer struct {
	Name      string
	Rows      int
	Cols      int
	Data      []float64 // row-major, row 0 is the northern-most row
	NoData    float64
	HasNoData bool
	Transform Affine
	CRS       string
}

// NewLayer allocates a layer of the given shape filled with NaN.
func NewLayer(name string, rows, cols int, transform Affine, crs string) *Layer {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = math.NaN()
	}
	return &Layer{Name: name, Rows: rows, Cols: cols, Data: data, Transform: transform, CRS: crs}
}

// At returns the raw value at (row, col).
func (l *Layer) At(row, col int) float64 {
	return l.Data[row*l.Cols+col]
}

// Set writes v at (row, col).
func (l *Layer) Set(row, col int, v float64) {
	l.Data[row*l.Cols+col] = v
}

// IsValidValue reports whether v is real data rather than the no-data marker.
func (l *Layer) IsValidValue(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return !l.HasNoData || v != l.NoData
}

// Valid reports whether the pixel at (row, col) holds data.
func (l *Layer) Valid(row, col int) bool {
	return l.IsValidValue(l.At(row, col))
}

// Bounds returns the layer's extent in map units.
func (l *Layer) Bounds() *geom.Bounds {
	t := l.Transform
	x0, y0 := t.C, t.F
	x1 := t.A*float64(l.Cols) + t.B*float64(l.Rows) + t.C
	y1 := t.D*float64(l.Cols) + t.E*float64(l.Rows) + t.F
	return geom.NewBounds(geom.XY).Set(math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1))
}

// Summary returns the minimum and maximum valid values and the count of valid pixels.
func (l *Layer) Summary() (minV, maxV float64, valid int) {
	minV, maxV = math.Inf(1), math.Inf(-1)
	for _, v := range l.Data {
		if !l.IsValidValue(v) {
			continue
		}
		valid++
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	if valid == 0 {
		return math.NaN(), math.NaN(), 0
	}
	return minV, maxV, valid
}

// CheckAligned verifies that other shares this layer's shape, transform and CRS.
func (l *Layer) CheckAligned(other *Layer) error {
	if l.Rows != other.Rows || l.Cols != other.Cols {
		return apperr.Input("raster: layer %s is %dx%d, %s is %dx%d",
			other.Name, other.Rows, other.Cols, l.Name, l.Rows, l.Cols)
	}
	if l.CRS != other.CRS {
		return apperr.Input("raster: layer %s has CRS %q, %s has %q", other.Name, other.CRS, l.Name, l.CRS)
	}
	if !affineEqual(l.Transform, other.Transform) {
		return apperr.Input("raster: layer %s transform %+v differs from %s %+v",
			other.Name, other.Transform, l.Name, l.Transform)
	}
	return nil
}

func affineEqual(a, b Affine) bool {
	const tol = 1e-9
	pairs := [][2]float64{{a.A, b.A}, {a.B, b.B}, {a.C, b.C}, {a.D, b.D}, {a.E, b.E}, {a.F, b.F}}
	for _, p := range pairs {
		scale := math.Max(1, math.Max(math.Abs(p[0]), math.Abs(p[1])))
		if math.Abs(p[0]-p[1]) > tol*scale {
			return false
		}
	}
	return true
}
