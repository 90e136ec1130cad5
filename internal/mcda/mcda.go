// Package mcda builds the weighted-overlay suitability surface used for
// reporting. It is a separate aggregation path from the optimizer.
package mcda

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/raster"
)

// CompositeName is the layer name given to composite surfaces.
const CompositeName = "composite"

// Weight is the contribution of one layer to the composite.
type Weight struct {
	Layer string  `json:"layer"`
	Value float64 `json:"value"`
}

// Weights is an ordered set of layer weights.
type Weights []Weight

// DefaultWeights gives flood risk twice the weight of the other layers.
func DefaultWeights() Weights {
	return Weights{
		{Layer: raster.Slope, Value: 1},
		{Layer: raster.LandcoverSuitability, Value: 1},
		{Layer: raster.Soil, Value: 1},
		{Layer: raster.UrbanProximity, Value: 1},
		{Layer: raster.FloodRisk, Value: 2},
	}
}

// WeightsFromMap orders m by the canonical objective order, then by name.
func WeightsFromMap(m map[string]float64) Weights {
	order := map[string]int{}
	for i, name := range DefaultWeights() {
		order[name.Layer] = i
	}
	w := make(Weights, 0, len(m))
	for k, v := range m {
		w = append(w, Weight{Layer: k, Value: v})
	}
	sort.Slice(w, func(i, j int) bool {
		oi, iok := order[w[i].Layer]
		oj, jok := order[w[j].Layer]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return w[i].Layer < w[j].Layer
		}
	})
	return w
}

// Normalize rescales the weights to sum to 1. Negative, non-finite or
// all-zero weights are configuration errors.
func (w Weights) Normalize() (Weights, error) {
	if len(w) == 0 {
		return nil, apperr.Config("mcda: no weights")
	}
	vals := make([]float64, len(w))
	seen := map[string]bool{}
	for i, x := range w {
		if x.Value < 0 || math.IsNaN(x.Value) || math.IsInf(x.Value, 0) {
			return nil, apperr.Config("mcda: weight for %s must be a non-negative number, got %g", x.Layer, x.Value)
		}
		if seen[x.Layer] {
			return nil, apperr.Config("mcda: duplicate weight for %s", x.Layer)
		}
		seen[x.Layer] = true
		vals[i] = x.Value
	}
	sum := floats.Sum(vals)
	if sum == 0 {
		return nil, apperr.Config("mcda: weights sum to zero")
	}
	out := make(Weights, len(w))
	for i, x := range w {
		out[i] = Weight{Layer: x.Layer, Value: x.Value / sum}
	}
	return out, nil
}

// MinMax rescales the valid values of data to [0,1], writing NaN for
// invalid entries. When every valid value is equal the result is 0 for all
// of them. It reports the observed range.
func MinMax(data []float64, valid func(float64) bool) (out []float64, lo, hi float64) {
	out = make([]float64, len(data))
	vals := make([]float64, 0, len(data))
	for _, v := range data {
		if valid(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, math.NaN(), math.NaN()
	}
	lo, hi = floats.Min(vals), floats.Max(vals)
	span := hi - lo
	for i, v := range data {
		switch {
		case !valid(v):
			out[i] = math.NaN()
		case span == 0:
			out[i] = 0
		default:
			out[i] = (v - lo) / span
		}
	}
	return out, lo, hi
}

// Result holds the weighted sum before and after the final rescale.
type Result struct {
	Raw        *raster.Layer
	Normalized *raster.Layer
	Weights    Weights
}

// Composite normalizes each weighted layer over its valid pixels, sums them
// with no-data counted as 0, masks the sum to the valid pixels of the mask
// layer and rescales the masked surface to [0,1]. Pixels outside the mask
// are NaN.
func Composite(layers map[string]*raster.Layer, mask string, weights Weights) (*Result, error) {
	w, err := weights.Normalize()
	if err != nil {
		return nil, err
	}
	m, ok := layers[mask]
	if !ok {
		return nil, apperr.Input("mcda: missing mask layer %q", mask)
	}

	sum := make([]float64, len(m.Data))
	for _, x := range w {
		l, ok := layers[x.Layer]
		if !ok {
			return nil, apperr.Input("mcda: missing layer %q", x.Layer)
		}
		if err := m.CheckAligned(l); err != nil {
			return nil, err
		}
		norm, lo, hi := MinMax(l.Data, l.IsValidValue)
		for i, v := range norm {
			if math.IsNaN(v) {
				norm[i] = 0
			}
		}
		floats.AddScaled(sum, x.Value, norm)
		zap.L().Debug("mcda: layer normalized",
			zap.String("layer", x.Layer),
			zap.Float64("weight", x.Value),
			zap.Float64("min", lo),
			zap.Float64("max", hi),
		)
	}

	raw := raster.NewLayer(CompositeName, m.Rows, m.Cols, m.Transform, m.CRS)
	raw.NoData, raw.HasNoData = raster.DefaultNoData, true
	for i, v := range m.Data {
		if m.IsValidValue(v) {
			raw.Data[i] = sum[i]
		}
	}

	norm := raster.NewLayer(CompositeName, m.Rows, m.Cols, m.Transform, m.CRS)
	norm.NoData, norm.HasNoData = raster.DefaultNoData, true
	scaled, lo, hi := MinMax(raw.Data, raw.IsValidValue)
	copy(norm.Data, scaled)

	zap.L().Info("mcda: composite computed",
		zap.Int("layers", len(w)),
		zap.Float64("raw_min", lo),
		zap.Float64("raw_max", hi),
	)
	return &Result{Raw: raw, Normalized: norm, Weights: w}, nil
}
