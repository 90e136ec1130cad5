package export

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteopt/internal/result"
)

// WriteShapefile writes the records as polygons to path (.shp, with the
// .shx and .dbf siblings). No .prj is written; the CRS is the source CRS
// recorded in the other exports.
func WriteShapefile(path string, records []result.Record) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	if err := writeShapes(w, records); err != nil {
		w.Close()
		return err
	}
	w.Close()

	// go-shp names the attribute table <base>dbf, without the dot
	base := path
	if strings.HasSuffix(strings.ToLower(base), ".shp") {
		base = base[:len(base)-len(".shp")]
	}
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrapf(err, "export: rename attribute table for %s", path)
	}
	return nil
}

func writeShapes(w *shp.Writer, records []result.Record) error {
	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		fields[i] = c.Field
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for _, r := range records {
		if r.Geometry == nil {
			return eris.Errorf("export: record for patch %d has no geometry", r.PatchID)
		}
		row := int(w.Write(toShpPolygon(r.Geometry)))
		for i, c := range columns {
			if err := w.WriteAttribute(row, i, c.Value(r)); err != nil {
				return eris.Wrapf(err, "export: write attribute %s for patch %d", c.Name, r.PatchID)
			}
		}
	}
	return nil
}

// toShpPolygon converts rings to shapefile order: outer ring clockwise,
// holes counter-clockwise.
func toShpPolygon(p *geom.Polygon) *shp.Polygon {
	parts := make([][]shp.Point, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		pts := make([]shp.Point, len(coords))
		for j, c := range coords {
			pts[j] = shp.Point{X: c.X(), Y: c.Y()}
		}
		if clockwise(pts) != (i == 0) {
			for a, b := 0, len(pts)-1; a < b; a, b = a+1, b-1 {
				pts[a], pts[b] = pts[b], pts[a]
			}
		}
		parts = append(parts, pts)
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

func clockwise(pts []shp.Point) bool {
	var area float64
	for i := 0; i+1 < len(pts); i++ {
		area += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return area < 0
}
