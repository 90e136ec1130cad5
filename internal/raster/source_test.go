package raster

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/resilience"
)

func gridText(v float64) string {
	return fmt.Sprintf("ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 10\nNODATA_value -9999\n%g %g\n%g %g\n", v, v, v, v)
}

func writeLayers(t *testing.T, dir string, names ...string) {
	t.Helper()
	for i, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n+".asc"), []byte(gridText(float64(i+1))), 0o644))
	}
}

func TestDirSource_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeLayers(t, dir, RequiredLayers...)

	src, err := NewDirSource(dir, "EPSG:32630")
	require.NoError(t, err)

	layers, err := LoadAll(context.Background(), src, RequiredLayers)
	require.NoError(t, err)
	assert.Len(t, layers, len(RequiredLayers))
	assert.Equal(t, "EPSG:32630", layers[FloodRisk].CRS)
	assert.Equal(t, 6.0, layers[FloodRisk].At(0, 0))
}

func TestDirSource_Manifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dem_slope.asc"), []byte(gridText(3)), 0o644))
	manifest := `
crs: EPSG:25831
layers:
  slope:
    file: dem_slope.asc
    nodata: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))

	src, err := NewDirSource(dir, "EPSG:32630")
	require.NoError(t, err)

	l, err := src.Load(context.Background(), Slope)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:25831", l.CRS)
	assert.False(t, l.Valid(0, 0), "manifest nodata override applies")
}

func TestDirSource_MissingLayer(t *testing.T) {
	src, err := NewDirSource(t.TempDir(), "EPSG:32630")
	require.NoError(t, err)

	_, err = LoadAll(context.Background(), src, []string{Slope})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInput))
}

func TestLoadAll_Misaligned(t *testing.T) {
	dir := t.TempDir()
	writeLayers(t, dir, StudyArea)
	shifted := "ncols 2\nnrows 2\nxllcorner 5\nyllcorner 0\ncellsize 10\n1 1\n1 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slope.asc"), []byte(shifted), 0o644))

	src, err := NewDirSource(dir, "EPSG:32630")
	require.NoError(t, err)

	_, err = LoadAll(context.Background(), src, []string{StudyArea, Slope})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInput))
}

func TestLoadAll_NoNames(t *testing.T) {
	_, err := LoadAll(context.Background(), &DirSource{}, nil)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestHTTPSource_RetriesTransientStatus(t *testing.T) {
	var slopeCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/layers/layers.yaml":
			http.NotFound(w, r)
		case "/layers/slope.asc":
			if slopeCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(gridText(0.5)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := NewHTTPSource(context.Background(), srv.URL+"/layers/", "EPSG:32630",
		HTTPOptions{RequestsPerSecond: 1000, Retry: fastRetry()})
	require.NoError(t, err)

	l, err := src.Load(context.Background(), Slope)
	require.NoError(t, err)
	assert.Equal(t, 0.5, l.At(1, 1))
	assert.Equal(t, "EPSG:32630", l.CRS)
	assert.Equal(t, int32(2), slopeCalls.Load())
}

func TestHTTPSource_ManifestAndNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/layers.yaml":
			_, _ = w.Write([]byte("crs: EPSG:25831\nlayers:\n  soil:\n    file: soil_v2.asc\n"))
		case "/soil_v2.asc":
			_, _ = w.Write([]byte(gridText(0.7)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := NewHTTPSource(context.Background(), srv.URL, "EPSG:32630",
		HTTPOptions{RequestsPerSecond: 1000, Retry: fastRetry()})
	require.NoError(t, err)

	l, err := src.Load(context.Background(), Soil)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:25831", l.CRS)

	_, err = src.Load(context.Background(), FloodRisk)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInput))
}
