package raster

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteopt/internal/apperr"
)

const sampleGrid = `ncols 3
nrows 2
xllcorner 500000
yllcorner 4600000
cellsize 30
NODATA_value -9999
1 2 3
4 -9999 6
`

func TestReadASCII(t *testing.T) {
	l, err := ReadASCII(strings.NewReader(sampleGrid), Slope, "EPSG:32630")
	require.NoError(t, err)

	assert.Equal(t, 2, l.Rows)
	assert.Equal(t, 3, l.Cols)
	assert.Equal(t, "EPSG:32630", l.CRS)
	assert.True(t, l.HasNoData)
	assert.Equal(t, 1.0, l.At(0, 0))
	assert.Equal(t, 6.0, l.At(1, 2))
	assert.False(t, l.Valid(1, 1))
	assert.True(t, l.Valid(1, 0))

	b := l.Bounds()
	assert.InDelta(t, 500000, b.Min(0), 1e-9)
	assert.InDelta(t, 4600000, b.Min(1), 1e-9)
	assert.InDelta(t, 500090, b.Max(0), 1e-9)
	assert.InDelta(t, 4600060, b.Max(1), 1e-9)

	minV, maxV, valid := l.Summary()
	assert.Equal(t, 1.0, minV)
	assert.Equal(t, 6.0, maxV)
	assert.Equal(t, 5, valid)
}

func TestReadASCII_CenterRegistration(t *testing.T) {
	grid := "ncols 1\nnrows 1\nxllcenter 15\nyllcenter 15\ncellsize 30\n7\n"
	l, err := ReadASCII(strings.NewReader(grid), Soil, "")
	require.NoError(t, err)
	assert.InDelta(t, 0, l.Bounds().Min(0), 1e-9)
	assert.InDelta(t, 30, l.Bounds().Max(1), 1e-9)
	assert.False(t, l.HasNoData)
}

func TestReadASCII_Errors(t *testing.T) {
	tests := map[string]string{
		"missing shape":  "xllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"short data":     "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n",
		"bad value":      "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nabc\n",
		"missing origin": "ncols 1\nnrows 1\ncellsize 1\n1\n",
		"zero cellsize":  "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 0\n1\n",
	}
	for name, grid := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadASCII(strings.NewReader(grid), Soil, "")
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindInput))
		})
	}
}

func TestWriteASCII_RoundTrip(t *testing.T) {
	l := NewLayer("composite", 2, 2, NorthUp(100, 200, 10), "EPSG:25831")
	l.Set(0, 0, 0.25)
	l.Set(0, 1, 1)
	l.Set(1, 0, 0)
	// (1,1) stays NaN

	var buf bytes.Buffer
	require.NoError(t, WriteASCII(&buf, l))

	back, err := ReadASCII(&buf, "composite", "EPSG:25831")
	require.NoError(t, err)
	assert.Equal(t, l.Transform, back.Transform)
	assert.Equal(t, 0.25, back.At(0, 0))
	assert.Equal(t, DefaultNoData, back.At(1, 1))
	assert.False(t, back.Valid(1, 1))
}

func TestWriteASCII_RejectsRotated(t *testing.T) {
	l := NewLayer("x", 1, 1, Affine{A: 1, B: 0.1, E: -1}, "")
	assert.Error(t, WriteASCII(&bytes.Buffer{}, l))
}

func TestLayer_IsValidValue(t *testing.T) {
	l := &Layer{NoData: -1, HasNoData: true}
	assert.False(t, l.IsValidValue(math.NaN()))
	assert.False(t, l.IsValidValue(-1))
	assert.True(t, l.IsValidValue(0))

	l.HasNoData = false
	assert.True(t, l.IsValidValue(-1))
}

func TestCheckAligned(t *testing.T) {
	a := NewLayer("a", 2, 2, NorthUp(0, 20, 10), "EPSG:32630")
	assert.NoError(t, a.CheckAligned(NewLayer("b", 2, 2, NorthUp(0, 20, 10), "EPSG:32630")))

	for name, other := range map[string]*Layer{
		"shape":     NewLayer("b", 3, 2, NorthUp(0, 20, 10), "EPSG:32630"),
		"crs":       NewLayer("b", 2, 2, NorthUp(0, 20, 10), "EPSG:32631"),
		"transform": NewLayer("b", 2, 2, NorthUp(5, 20, 10), "EPSG:32630"),
	} {
		t.Run(name, func(t *testing.T) {
			err := a.CheckAligned(other)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindInput))
		})
	}
}
