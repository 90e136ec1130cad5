package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/siteopt/internal/result"
)

type featureCollection struct {
	Type     string             `json:"type"`
	CRS      crsMember          `json:"crs"`
	Features []*geojson.Feature `json:"features"`
}

type crsMember struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// WriteGeoJSON writes one polygon feature per record, in record order. The
// geometry is the patch cell in the source CRS, named in the crs member;
// properties mirror the tabular row.
func WriteGeoJSON(w io.Writer, rep *result.Report) error {
	fc := featureCollection{
		Type: "FeatureCollection",
		CRS: crsMember{
			Type:       "name",
			Properties: map[string]string{"name": rep.SourceCRS},
		},
		Features: make([]*geojson.Feature, 0, len(rep.Records)),
	}
	for _, r := range rep.Records {
		if r.Geometry == nil {
			return eris.Errorf("export: record for patch %d has no geometry", r.PatchID)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(r.Rank),
			Geometry:   r.Geometry,
			Properties: properties(r),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(fc), "export: encode geojson")
}
