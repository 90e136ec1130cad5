// Package export writes selection records to the tabular, vector and text
// artifacts consumed by reporting.
package export

import (
	"github.com/jonas-p/go-shp"

	"github.com/sells-group/siteopt/internal/result"
)

// column is one attribute of the tabular row, shared by every format so
// they agree on names and order.
type column struct {
	Name  string
	Field shp.Field
	Value func(result.Record) any
}

var columns = []column{
	{"rank", shp.NumberField("rank", 10), func(r result.Record) any { return r.Rank }},
	{"patch_id", shp.NumberField("patch_id", 10), func(r result.Record) any { return r.PatchID }},
	{"run", shp.NumberField("run", 10), func(r result.Record) any { return r.Run }},
	{"centroid_x", shp.FloatField("cx", 18, 3), func(r result.Record) any { return r.CentroidX }},
	{"centroid_y", shp.FloatField("cy", 18, 3), func(r result.Record) any { return r.CentroidY }},
	{"report_centroid_x", shp.FloatField("report_cx", 18, 3), func(r result.Record) any { return r.ReportX }},
	{"report_centroid_y", shp.FloatField("report_cy", 18, 3), func(r result.Record) any { return r.ReportY }},
	{"bbox", shp.StringField("bbox", 80), func(r result.Record) any { return r.BBox }},
	{"landcoverSuitability", shp.FloatField("landcover", 18, 6), func(r result.Record) any { return r.LandcoverSuitability }},
	{"slope", shp.FloatField("slope", 18, 6), func(r result.Record) any { return r.Slope }},
	{"soil", shp.FloatField("soil", 18, 6), func(r result.Record) any { return r.Soil }},
	{"floodRisk", shp.FloatField("flood", 18, 6), func(r result.Record) any { return r.FloodRisk }},
	{"urbanProximity", shp.FloatField("urban", 18, 6), func(r result.Record) any { return r.UrbanProximity }},
	{"overall_score", shp.FloatField("score", 18, 6), func(r result.Record) any { return r.OverallScore }},
}

// ColumnNames returns the tabular header in order.
func ColumnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func properties(r result.Record) map[string]any {
	props := make(map[string]any, len(columns))
	for _, c := range columns {
		props[c.Name] = c.Value(r)
	}
	return props
}
