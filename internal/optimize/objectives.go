// Package optimize runs the evolutionary search and spatial selection over a
// frozen patch table, repeated across independent runs.
package optimize

import (
	"math"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/mcda"
)

// Objectives holds, per valid patch, the objective statistics min-max
// normalized across the whole table.
type Objectives struct {
	Names []string
	ids   []int
	index map[int]int
	norm  [][]float64
	lo    []float64
	hi    []float64
}

// NewObjectives normalizes each named statistic independently over every
// patch of t. An empty table is a configuration error.
func NewObjectives(t *grid.Table, names []string) (*Objectives, error) {
	if t == nil || t.Len() == 0 {
		return nil, apperr.Config("optimize: patch table has no valid patches")
	}
	if len(names) == 0 {
		return nil, apperr.Config("optimize: no objectives")
	}

	patches := t.Patches()
	o := &Objectives{
		Names: append([]string(nil), names...),
		ids:   t.IDs(),
		index: make(map[int]int, len(patches)),
		norm:  make([][]float64, len(patches)),
		lo:    make([]float64, len(names)),
		hi:    make([]float64, len(names)),
	}
	for i, p := range patches {
		o.index[p.ID] = i
		o.norm[i] = make([]float64, len(names))
	}

	column := make([]float64, len(patches))
	for j, name := range names {
		for i, p := range patches {
			v, ok := p.Stat(name)
			if !ok {
				return nil, apperr.Input("optimize: patch %d has no %s statistic", p.ID, name)
			}
			column[i] = v
		}
		scaled, lo, hi := mcda.MinMax(column, func(v float64) bool { return !math.IsNaN(v) })
		o.lo[j], o.hi[j] = lo, hi
		for i := range patches {
			o.norm[i][j] = scaled[i]
		}
	}
	return o, nil
}

// Len returns the number of candidate patches.
func (o *Objectives) Len() int {
	return len(o.ids)
}

// ID returns the patch id of the i-th candidate.
func (o *Objectives) ID(i int) int {
	return o.ids[i]
}

// Normalized returns the normalized objective vector of a patch.
func (o *Objectives) Normalized(id int) ([]float64, bool) {
	i, ok := o.index[id]
	if !ok {
		return nil, false
	}
	return o.norm[i], true
}

// Range returns the raw minimum and maximum of objective j.
func (o *Objectives) Range(j int) (float64, float64) {
	return o.lo[j], o.hi[j]
}
