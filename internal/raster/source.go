package raster

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteopt/internal/apperr"
)

// Source supplies named layers.
type Source interface {
	Load(ctx context.Context, name string) (*Layer, error)
}

// ManifestFile is the optional per-directory layer manifest.
const ManifestFile = "layers.yaml"

// Manifest describes where each layer lives and how it is georeferenced.
type Manifest struct {
	CRS    string                   `yaml:"crs"`
	Layers map[string]LayerManifest `yaml:"layers"`
}

// LayerManifest overrides the defaults for a single layer.
type LayerManifest struct {
	File   string   `yaml:"file"`
	CRS    string   `yaml:"crs"`
	NoData *float64 `yaml:"nodata"`
}

// ReadManifest loads a manifest file. A missing file yields an empty manifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperr.WrapInput(err, "raster: parse manifest "+path)
	}
	return &m, nil
}

// entry resolves the file name, CRS and no-data override for a layer.
func (m *Manifest) entry(name, defaultCRS string) (file, crs string, nodata *float64) {
	file, crs = name+".asc", defaultCRS
	if m == nil {
		return file, crs, nil
	}
	if m.CRS != "" {
		crs = m.CRS
	}
	if lm, ok := m.Layers[name]; ok {
		if lm.File != "" {
			file = lm.File
		}
		if lm.CRS != "" {
			crs = lm.CRS
		}
		nodata = lm.NoData
	}
	return file, crs, nodata
}

// DirSource reads ESRI ASCII grids from a local directory.
type DirSource struct {
	Dir        string
	DefaultCRS string
	manifest   *Manifest
}

// NewDirSource creates a DirSource, reading layers.yaml from dir when present.
func NewDirSource(dir, defaultCRS string) (*DirSource, error) {
	m, err := ReadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	return &DirSource{Dir: dir, DefaultCRS: defaultCRS, manifest: m}, nil
}

// Load reads the named layer.
func (s *DirSource) Load(ctx context.Context, name string) (*Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, crs, nodata := s.manifest.entry(name, s.DefaultCRS)
	path := filepath.Join(s.Dir, file)
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.WrapInput(err, "raster: open "+path)
	}
	defer f.Close() //nolint:errcheck

	layer, err := ReadASCII(f, name, crs)
	if err != nil {
		return nil, err
	}
	applyNoData(layer, nodata)
	return layer, nil
}

func applyNoData(l *Layer, nodata *float64) {
	if nodata != nil {
		l.NoData, l.HasNoData = *nodata, true
	}
}

// LoadAll loads every named layer from src and checks that they are
// co-registered with the first one. Any failure aborts the whole load.
func LoadAll(ctx context.Context, src Source, names []string) (map[string]*Layer, error) {
	if len(names) == 0 {
		return nil, apperr.Config("raster: no layers requested")
	}
	layers := make(map[string]*Layer, len(names))
	var ref *Layer
	for _, name := range names {
		layer, err := src.Load(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: load %s", name)
		}
		if ref == nil {
			if !layer.Transform.IsNorthUp() {
				return nil, apperr.Input("raster: %s: rotated or south-up grids are not supported", name)
			}
			ref = layer
		} else if err := ref.CheckAligned(layer); err != nil {
			return nil, err
		}

		minV, maxV, valid := layer.Summary()
		zap.L().Info("raster: loaded layer",
			zap.String("layer", name),
			zap.Int("rows", layer.Rows),
			zap.Int("cols", layer.Cols),
			zap.String("crs", layer.CRS),
			zap.Int("valid_pixels", valid),
			zap.Float64("min", minV),
			zap.Float64("max", maxV),
		)
		layers[name] = layer
	}
	return layers, nil
}
