// Package report renders the composite suitability map and the per-run
// Pareto projections as PNG plots.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/export"
	"github.com/sells-group/siteopt/internal/raster"
)

// CompositeFile is the file name of the composite heat map.
const CompositeFile = "composite.png"

const (
	width  = 8 * vg.Inch
	height = 6 * vg.Inch
)

// layerGrid exposes a north-up layer as a plotter.GridXYZ with rows running
// south to north.
type layerGrid struct {
	l *raster.Layer
}

func (g layerGrid) Dims() (c, r int) { return g.l.Cols, g.l.Rows }

func (g layerGrid) Z(c, r int) float64 {
	row := g.l.Rows - 1 - r
	if !g.l.Valid(row, c) {
		return math.NaN()
	}
	return g.l.At(row, c)
}

func (g layerGrid) X(c int) float64 {
	x, _ := g.l.Transform.PixelCenter(0, c)
	return x
}

func (g layerGrid) Y(r int) float64 {
	_, y := g.l.Transform.PixelCenter(g.l.Rows-1-r, 0)
	return y
}

// Composite draws the normalized composite with the selected cells outlined.
func Composite(path string, composite *raster.Layer, outlines []*geom.Polygon) error {
	if composite == nil {
		return apperr.Input("report: composite layer is required")
	}
	if !composite.Transform.IsNorthUp() {
		return apperr.Input("report: composite must be north-up")
	}

	p := plot.New()
	p.Title.Text = "Composite suitability"
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"

	hm := plotter.NewHeatMap(layerGrid{composite}, palette.Heat(16, 1))
	hm.Min, hm.Max = 0, 1
	hm.NaN = color.Transparent
	p.Add(hm)

	for i, poly := range outlines {
		if poly == nil || poly.NumLinearRings() == 0 {
			continue
		}
		ring := poly.LinearRing(0)
		pts := make(plotter.XYs, ring.NumCoords())
		for j := range pts {
			c := ring.Coord(j)
			pts[j].X, pts[j].Y = c.X(), c.Y()
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return eris.Wrapf(err, "report: outline %d", i)
		}
		line.LineStyle.Color = color.Black
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
	}
	return save(p, path)
}

// ParetoPairs writes one scatter per objective pair of the weighted fitness
// of each run's selected individuals, coloured by run. It returns the
// written paths.
func ParetoPairs(dir string, runs []export.RunListing, names []string) ([]string, error) {
	if len(names) < 2 {
		return nil, apperr.Config("report: need at least two objectives, got %d", len(names))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	var paths []string
	for a := 0; a < len(names); a++ {
		for b := a + 1; b < len(names); b++ {
			p := plot.New()
			p.Title.Text = fmt.Sprintf("Selected patches: %s vs %s", names[a], names[b])
			p.X.Label.Text = names[a]
			p.Y.Label.Text = names[b]
			p.Legend.Top = true

			for k, run := range runs {
				pts := make(plotter.XYs, 0, len(run.Selected))
				for _, ind := range run.Selected {
					if len(ind.Fitness) != len(names) {
						return nil, apperr.Input("report: run %d fitness has %d values, want %d", run.Run, len(ind.Fitness), len(names))
					}
					pts = append(pts, plotter.XY{X: ind.Fitness[a], Y: ind.Fitness[b]})
				}
				if len(pts) == 0 {
					continue
				}
				s, err := plotter.NewScatter(pts)
				if err != nil {
					return nil, eris.Wrapf(err, "report: scatter run %d", run.Run)
				}
				s.GlyphStyle.Color = plotutil.Color(k)
				s.GlyphStyle.Shape = plotutil.Shape(k)
				s.GlyphStyle.Radius = vg.Points(3)
				p.Add(s)
				p.Legend.Add(fmt.Sprintf("run %d", run.Run), s)
			}

			path := filepath.Join(dir, fmt.Sprintf("pareto_%s_%s.png", names[a], names[b]))
			if err := save(p, path); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	zap.L().Info("pareto plots written", zap.String("dir", dir), zap.Int("plots", len(paths)))
	return paths, nil
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir for %s", path)
	}
	if err := p.Save(width, height, path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
