package proj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteopt/internal/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		code  string
		zone  int
		north bool
	}{
		{"EPSG:4326", 0, false},
		{"epsg:32630", 30, true},
		{"32731", 31, false},
		{"EPSG:25831", 31, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c, err := Parse(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.zone, c.Zone)
			assert.Equal(t, tt.north, c.North)
		})
	}

	for _, bad := range []string{"", "EPSG:3857", "WGS84", "EPSG:32661"} {
		_, err := Parse(bad)
		assert.True(t, apperr.Is(err, apperr.KindConfig), bad)
	}
}

func TestForward_KnownPoints(t *testing.T) {
	tr, err := NewTransformer("EPSG:4326", "EPSG:32630")
	require.NoError(t, err)

	e, n := tr.Forward(-3, 40)
	assert.InDelta(t, 500000.0, e, 1e-3)
	assert.InDelta(t, 4427757.219, n, 0.01)

	e, n = tr.Forward(-3, 0)
	assert.InDelta(t, 500000.0, e, 1e-3)
	assert.InDelta(t, 0, n, 1e-3)

	tr, err = NewTransformer("EPSG:4326", "EPSG:25831")
	require.NoError(t, err)
	e, n = tr.Forward(2.9862, 42.0553)
	assert.InDelta(t, 498858.107, e, 0.1)
	assert.InDelta(t, 4655916.242, n, 0.1)
}

func TestSouthernHemisphere(t *testing.T) {
	tr, err := NewTransformer("EPSG:4326", "EPSG:32731")
	require.NoError(t, err)
	e, n := tr.Forward(3, 0)
	assert.InDelta(t, 500000.0, e, 1e-3)
	assert.InDelta(t, 10000000.0, n, 1e-3)

	lon, lat := tr.Inverse(e, n-100000)
	assert.InDelta(t, 3, lon, 1e-7)
	assert.Less(t, lat, 0.0)
}

func TestRoundTripAcrossZones(t *testing.T) {
	tr, err := NewTransformer("EPSG:32630", "EPSG:25831")
	require.NoError(t, err)

	for _, p := range [][2]float64{{509000, 4650000}, {995426.318, 4673285.791}, {700000, 4400000}} {
		x, y := tr.Forward(p[0], p[1])
		bx, by := tr.Inverse(x, y)
		assert.InDelta(t, p[0], bx, 0.01)
		assert.InDelta(t, p[1], by, 0.01)
	}
}

func TestIdentity(t *testing.T) {
	tr, err := NewTransformer("EPSG:32631", "EPSG:25831")
	require.NoError(t, err)
	assert.True(t, tr.Identity())
	x, y := tr.Forward(123.4, 567.8)
	assert.Equal(t, 123.4, x)
	assert.Equal(t, 567.8, y)
}

func TestBounds(t *testing.T) {
	tr, err := NewTransformer("EPSG:32630", "EPSG:25831")
	require.NoError(t, err)

	b := geom.NewBounds(geom.XY).Set(990000, 4670000, 991000, 4671000)
	out := tr.Bounds(b)

	corners := geom.NewBounds(geom.XY)
	for _, c := range [][2]float64{{990000, 4670000}, {991000, 4670000}, {990000, 4671000}, {991000, 4671000}} {
		x, y := tr.Forward(c[0], c[1])
		corners.Extend(geom.NewPointFlat(geom.XY, []float64{x, y}))
	}
	x, y := tr.Forward(990500, 4670500)
	assert.True(t, out.OverlapsPoint(geom.XY, geom.Coord{x, y}))

	// cells rotate by the grid convergence between zones, so the envelope
	// is the envelope of the projected corners, wider than the cell
	assert.InDelta(t, corners.Min(0), out.Min(0), 0.5)
	assert.InDelta(t, corners.Max(0), out.Max(0), 0.5)
	assert.InDelta(t, corners.Min(1), out.Min(1), 0.5)
	assert.InDelta(t, corners.Max(1), out.Max(1), 0.5)
	assert.Greater(t, out.Max(0)-out.Min(0), 1000.0)
	assert.Less(t, out.Max(0)-out.Min(0), 1100.0)
}

func TestBounds_Identity(t *testing.T) {
	tr, err := NewTransformer("EPSG:32631", "EPSG:25831")
	require.NoError(t, err)
	out := tr.Bounds(geom.NewBounds(geom.XY).Set(1, 2, 3, 4))
	assert.Equal(t, []float64{1, 2}, []float64{out.Min(0), out.Min(1)})
	assert.Equal(t, []float64{3, 4}, []float64{out.Max(0), out.Max(1)})
}
