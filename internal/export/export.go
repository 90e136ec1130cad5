package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/result"
)

// Artifact file names written to the output directory.
const (
	CSVFile       = "selected_patches.csv"
	XLSXFile      = "selected_patches.xlsx"
	GeoJSONFile   = "selected_patches.geojson"
	ShapefileFile = "selected_patches.shp"
	BBoxFile      = "bbox_export.txt"
	RunsFile      = "selections_by_run.json"
)

// WriteAll writes every artifact for rep into dir and returns their paths.
// runs may be nil, in which case the per-run listing is skipped.
func WriteAll(dir string, rep *result.Report, runs []optimize.RunResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}

	var written []string
	writeFile := func(name string, fn func(f *os.File) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", path)
		}
		if err := fn(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "export: close %s", path)
		}
		written = append(written, path)
		return nil
	}

	type step struct {
		name string
		fn   func(f *os.File) error
	}
	steps := []step{
		{CSVFile, func(f *os.File) error { return WriteCSV(f, rep.Records) }},
		{GeoJSONFile, func(f *os.File) error { return WriteGeoJSON(f, rep) }},
		{BBoxFile, func(f *os.File) error { return WriteBBoxes(f, rep) }},
	}
	if runs != nil {
		steps = append(steps, step{RunsFile, func(f *os.File) error { return WriteRuns(f, runs) }})
	}
	for _, s := range steps {
		if err := writeFile(s.name, s.fn); err != nil {
			return written, err
		}
	}

	xlsxPath := filepath.Join(dir, XLSXFile)
	if err := WriteXLSX(xlsxPath, rep.Records); err != nil {
		return written, err
	}
	written = append(written, xlsxPath)

	shpPath := filepath.Join(dir, ShapefileFile)
	if err := WriteShapefile(shpPath, rep.Records); err != nil {
		return written, err
	}
	written = append(written, shpPath)

	zap.L().Info("export: artifacts written",
		zap.String("dir", dir),
		zap.Int("records", len(rep.Records)),
		zap.Int("files", len(written)),
	)
	return written, nil
}
