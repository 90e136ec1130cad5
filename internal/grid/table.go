package grid

import (
	"github.com/twpayne/go-geom"
)

// Table is the frozen set of valid patches for one study area.
type Table struct {
	CRS      string
	GridSize float64
	Rows     int
	Cols     int
	Extent   *geom.Bounds
	Required []string
	// Dropped counts cells excluded for lacking valid pixels.
	Dropped int

	patches []*Patch
	byID    map[int]*Patch
}

func newTable(crs string, gridSize float64, rows, cols int, extent *geom.Bounds, required []string, patches []*Patch, dropped int) *Table {
	byID := make(map[int]*Patch, len(patches))
	for _, p := range patches {
		byID[p.ID] = p
	}
	req := append([]string(nil), required...)
	return &Table{
		CRS:      crs,
		GridSize: gridSize,
		Rows:     rows,
		Cols:     cols,
		Extent:   extent,
		Required: req,
		Dropped:  dropped,
		patches:  patches,
		byID:     byID,
	}
}

// Len returns the number of valid patches.
func (t *Table) Len() int {
	return len(t.patches)
}

// Cells returns the total number of grid cells, valid or not.
func (t *Table) Cells() int {
	return t.Rows * t.Cols
}

// Patches returns the valid patches in ascending id order. The slice must not be modified.
func (t *Table) Patches() []*Patch {
	return t.patches
}

// IDs returns the valid patch ids in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, len(t.patches))
	for i, p := range t.patches {
		ids[i] = p.ID
	}
	return ids
}

// Lookup finds a valid patch by id.
func (t *Table) Lookup(id int) (*Patch, bool) {
	p, ok := t.byID[id]
	return p, ok
}
