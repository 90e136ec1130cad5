// Package result resolves selected individuals into ranked, reprojected
// selection records.
package result

import (
	"fmt"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/proj"
	"github.com/sells-group/siteopt/internal/raster"
)

// Record is one ranked selection. Objective columns hold the raw patch
// statistics; a missing statistic is reported as 0.
type Record struct {
	Rank                 int     `json:"rank" csv:"rank"`
	PatchID              int     `json:"patch_id" csv:"patch_id"`
	Run                  int     `json:"run" csv:"run"`
	CentroidX            float64 `json:"centroid_x" csv:"centroid_x"`
	CentroidY            float64 `json:"centroid_y" csv:"centroid_y"`
	ReportX              float64 `json:"report_centroid_x" csv:"report_centroid_x"`
	ReportY              float64 `json:"report_centroid_y" csv:"report_centroid_y"`
	BBox                 string  `json:"bbox" csv:"bbox"`
	LandcoverSuitability float64 `json:"landcoverSuitability" csv:"landcoverSuitability"`
	Slope                float64 `json:"slope" csv:"slope"`
	Soil                 float64 `json:"soil" csv:"soil"`
	FloodRisk            float64 `json:"floodRisk" csv:"floodRisk"`
	UrbanProximity       float64 `json:"urbanProximity" csv:"urbanProximity"`
	OverallScore         float64 `json:"overall_score" csv:"overall_score"`

	// Geometry is the patch's cell polygon in the source CRS.
	Geometry *geom.Polygon `json:"-" csv:"-"`
}

// Objective returns the raw value of one of the standard objective columns.
func (r Record) Objective(name string) (float64, bool) {
	switch name {
	case raster.LandcoverSuitability:
		return r.LandcoverSuitability, true
	case raster.Slope:
		return r.Slope, true
	case raster.Soil:
		return r.Soil, true
	case raster.FloodRisk:
		return r.FloodRisk, true
	case raster.UrbanProximity:
		return r.UrbanProximity, true
	}
	return 0, false
}

// Report is the aggregated output of one optimization.
type Report struct {
	SourceCRS string
	ReportCRS string
	Records   []Record
}

// FormatBBox renders bounds as minx,miny,maxx,maxy with two decimals.
func FormatBBox(b *geom.Bounds) string {
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", b.Min(0), b.Min(1), b.Max(0), b.Max(1))
}

// Aggregate builds one record per selection, in order, with rank equal to
// the 1-based position. Centroid and bounding box are transformed to the
// transformer's target CRS.
func Aggregate(t *grid.Table, selections []optimize.Selection, tr *proj.Transformer) (*Report, error) {
	rep := &Report{
		SourceCRS: tr.From().String(),
		ReportCRS: tr.To().String(),
		Records:   make([]Record, 0, len(selections)),
	}
	for i, s := range selections {
		p, ok := t.Lookup(s.Individual.Genome)
		if !ok {
			return nil, apperr.Internal("result: selection %d references unknown patch %d", i, s.Individual.Genome)
		}
		rx, ry := tr.Forward(p.CentroidX, p.CentroidY)
		r := Record{
			Rank:         i + 1,
			PatchID:      p.ID,
			Run:          s.Run + 1,
			CentroidX:    p.CentroidX,
			CentroidY:    p.CentroidY,
			ReportX:      rx,
			ReportY:      ry,
			BBox:         FormatBBox(tr.Bounds(p.Bounds())),
			OverallScore: s.Individual.Score(),
			Geometry:     p.Polygon,
		}
		r.LandcoverSuitability = stat(p, raster.LandcoverSuitability)
		r.Slope = stat(p, raster.Slope)
		r.Soil = stat(p, raster.Soil)
		r.FloodRisk = stat(p, raster.FloodRisk)
		r.UrbanProximity = stat(p, raster.UrbanProximity)
		rep.Records = append(rep.Records, r)
	}
	return rep, nil
}

func stat(p *grid.Patch, name string) float64 {
	v, _ := p.Stat(name)
	return v
}

// Dedupe drops records whose patch id already appeared, keeping the first,
// and renumbers ranks.
func Dedupe(records []Record) []Record {
	seen := map[int]bool{}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if seen[r.PatchID] {
			continue
		}
		seen[r.PatchID] = true
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out
}

// TopN returns up to n distinct patches ordered by descending overall score.
// Ranks keep their aggregated values.
func TopN(records []Record, n int) []Record {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OverallScore > sorted[j].OverallScore
	})
	seen := map[int]bool{}
	out := make([]Record, 0, n)
	for _, r := range sorted {
		if len(out) >= n {
			break
		}
		if seen[r.PatchID] {
			continue
		}
		seen[r.PatchID] = true
		out = append(out, r)
	}
	return out
}
