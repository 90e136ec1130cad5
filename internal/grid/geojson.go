package grid

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/siteopt/internal/apperr"
)

// Reserved patch properties; every other numeric property is a layer statistic.
const (
	propID        = "id"
	propRow       = "row"
	propCol       = "col"
	propCentroidX = "centroid_x"
	propCentroidY = "centroid_y"
)

type tableMetadata struct {
	GridSize float64    `json:"grid_size"`
	Rows     int        `json:"rows"`
	Cols     int        `json:"cols"`
	Dropped  int        `json:"dropped"`
	Extent   [4]float64 `json:"extent"`
	Required []string   `json:"required"`
}

type tableDocument struct {
	Type     string             `json:"type"`
	CRS      string             `json:"crs"`
	Metadata tableMetadata      `json:"metadata"`
	Features []*geojson.Feature `json:"features"`
}

// WriteGeoJSON stores the table as a FeatureCollection with one polygon per
// valid patch, plus the grid metadata needed to rebuild it.
func WriteGeoJSON(w io.Writer, t *Table) error {
	doc := tableDocument{
		Type: "FeatureCollection",
		CRS:  t.CRS,
		Metadata: tableMetadata{
			GridSize: t.GridSize,
			Rows:     t.Rows,
			Cols:     t.Cols,
			Dropped:  t.Dropped,
			Extent:   [4]float64{t.Extent.Min(0), t.Extent.Min(1), t.Extent.Max(0), t.Extent.Max(1)},
			Required: t.Required,
		},
		Features: make([]*geojson.Feature, 0, t.Len()),
	}
	for _, p := range t.patches {
		props := map[string]any{
			propID:        p.ID,
			propRow:       p.Row,
			propCol:       p.Col,
			propCentroidX: p.CentroidX,
			propCentroidY: p.CentroidY,
		}
		for k, v := range p.stats {
			props[k] = v
		}
		doc.Features = append(doc.Features, &geojson.Feature{
			ID:         strconv.Itoa(p.ID),
			Geometry:   p.Polygon,
			Properties: props,
		})
	}
	enc := json.NewEncoder(w)
	return eris.Wrap(enc.Encode(doc), "grid: encode patch table")
}

// ReadGeoJSON loads a table written by WriteGeoJSON.
func ReadGeoJSON(r io.Reader) (*Table, error) {
	var doc tableDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, apperr.WrapInput(err, "grid: decode patch table")
	}
	if doc.Metadata.GridSize <= 0 || doc.Metadata.Rows <= 0 || doc.Metadata.Cols <= 0 {
		return nil, apperr.Input("grid: patch table has no grid metadata")
	}

	patches := make([]*Patch, 0, len(doc.Features))
	prev := -1
	for i, f := range doc.Features {
		poly, ok := f.Geometry.(*geom.Polygon)
		if !ok {
			return nil, apperr.Input("grid: feature %d geometry is %T, want polygon", i, f.Geometry)
		}
		id, err1 := intProp(f.Properties, propID)
		row, err2 := intProp(f.Properties, propRow)
		col, err3 := intProp(f.Properties, propCol)
		for _, err := range []error{err1, err2, err3} {
			if err != nil {
				return nil, apperr.Input("grid: feature %d: %v", i, err)
			}
		}
		if id != row*doc.Metadata.Cols+col || id <= prev {
			return nil, apperr.Input("grid: feature %d has inconsistent id %d (row %d col %d)", i, id, row, col)
		}
		prev = id

		stats := map[string]float64{}
		for k, v := range f.Properties {
			switch k {
			case propID, propRow, propCol, propCentroidX, propCentroidY:
				continue
			}
			if fv, ok := v.(float64); ok {
				stats[k] = fv
			}
		}
		patches = append(patches, NewPatch(id, row, col, poly.Bounds(), stats))
	}

	md := doc.Metadata
	extent := geom.NewBounds(geom.XY).Set(md.Extent[0], md.Extent[1], md.Extent[2], md.Extent[3])
	return newTable(doc.CRS, md.GridSize, md.Rows, md.Cols, extent, md.Required, patches, md.Dropped), nil
}

func intProp(props map[string]any, key string) (int, error) {
	v, ok := props[key].(float64)
	if !ok {
		return 0, eris.Errorf("property %q missing or not numeric", key)
	}
	return int(v), nil
}
