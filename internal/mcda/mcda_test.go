package mcda

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/raster"
)

func layerOf(name string, vals []float64) *raster.Layer {
	l := raster.NewLayer(name, 2, 2, raster.NorthUp(0, 20, 10), "EPSG:32630")
	l.NoData, l.HasNoData = -9999, true
	copy(l.Data, vals)
	return l
}

func TestDefaultWeights_Normalize(t *testing.T) {
	w, err := DefaultWeights().Normalize()
	require.NoError(t, err)
	require.Len(t, w, 5)

	total := 0.0
	for _, x := range w {
		total += x.Value
		if x.Layer == raster.FloodRisk {
			assert.InDelta(t, 2.0/6, x.Value, 1e-12)
		} else {
			assert.InDelta(t, 1.0/6, x.Value, 1e-12)
		}
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestNormalize_Rejects(t *testing.T) {
	cases := map[string]Weights{
		"empty":     {},
		"negative":  {{Layer: "a", Value: -1}, {Layer: "b", Value: 2}},
		"zero":      {{Layer: "a", Value: 0}},
		"nan":       {{Layer: "a", Value: math.NaN()}},
		"duplicate": {{Layer: "a", Value: 1}, {Layer: "a", Value: 1}},
	}
	for name, w := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := w.Normalize()
			assert.True(t, apperr.Is(err, apperr.KindConfig))
		})
	}
}

func TestWeightsFromMap_Order(t *testing.T) {
	w := WeightsFromMap(map[string]float64{
		"zeta":           1,
		raster.FloodRisk: 2,
		raster.Slope:     1,
		"alpha":          3,
	})
	var names []string
	for _, x := range w {
		names = append(names, x.Layer)
	}
	assert.Equal(t, []string{raster.Slope, raster.FloodRisk, "alpha", "zeta"}, names)
}

func TestMinMax(t *testing.T) {
	valid := func(v float64) bool { return !math.IsNaN(v) && v != -9999 }

	out, lo, hi := MinMax([]float64{2, 4, -9999, 6}, valid)
	assert.Equal(t, 2.0, lo)
	assert.Equal(t, 6.0, hi)
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 0.5, out[1])
	assert.True(t, math.IsNaN(out[2]))
	assert.Equal(t, 1.0, out[3])

	out, _, _ = MinMax([]float64{3, 3, math.NaN()}, valid)
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 0.0, out[1])
	assert.True(t, math.IsNaN(out[2]))

	out, lo, _ = MinMax([]float64{-9999}, valid)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(lo))
}

func TestComposite(t *testing.T) {
	layers := map[string]*raster.Layer{
		raster.StudyArea: layerOf(raster.StudyArea, []float64{1, 1, 1, -9999}),
		"a":              layerOf("a", []float64{0, 10, 5, 10}),
		"b":              layerOf("b", []float64{4, 4, -9999, 0}),
	}
	res, err := Composite(layers, raster.StudyArea, Weights{{Layer: "a", Value: 1}, {Layer: "b", Value: 1}})
	require.NoError(t, err)

	// a -> 0, 1, .5, 1 ; b -> 1, 1, 0(no-data), 0 ; sum*0.5 -> .5, 1, .25, (masked)
	assert.InDelta(t, 0.5, res.Raw.Data[0], 1e-12)
	assert.InDelta(t, 1.0, res.Raw.Data[1], 1e-12)
	assert.InDelta(t, 0.25, res.Raw.Data[2], 1e-12)
	assert.True(t, math.IsNaN(res.Raw.Data[3]))

	assert.InDelta(t, 1.0/3, res.Normalized.Data[0], 1e-12)
	assert.InDelta(t, 1.0, res.Normalized.Data[1], 1e-12)
	assert.InDelta(t, 0.0, res.Normalized.Data[2], 1e-12)
	assert.True(t, math.IsNaN(res.Normalized.Data[3]))
	assert.Equal(t, CompositeName, res.Normalized.Name)
}

func TestComposite_UniformLayersAreZero(t *testing.T) {
	layers := map[string]*raster.Layer{
		raster.StudyArea: layerOf(raster.StudyArea, []float64{1, 1, 1, 1}),
		"a":              layerOf("a", []float64{7, 7, 7, 7}),
	}
	res, err := Composite(layers, raster.StudyArea, Weights{{Layer: "a", Value: 1}})
	require.NoError(t, err)
	for _, v := range res.Normalized.Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestComposite_Errors(t *testing.T) {
	base := layerOf(raster.StudyArea, []float64{1, 1, 1, 1})
	_, err := Composite(map[string]*raster.Layer{raster.StudyArea: base}, raster.StudyArea, Weights{{Layer: "a", Value: 1}})
	assert.True(t, apperr.Is(err, apperr.KindInput))

	_, err = Composite(map[string]*raster.Layer{}, raster.StudyArea, DefaultWeights())
	assert.True(t, apperr.Is(err, apperr.KindInput))

	other := layerOf("a", []float64{1, 2, 3, 4})
	other.CRS = "EPSG:4326"
	_, err = Composite(map[string]*raster.Layer{raster.StudyArea: base, "a": other}, raster.StudyArea, Weights{{Layer: "a", Value: 1}})
	assert.True(t, apperr.Is(err, apperr.KindInput))
}
