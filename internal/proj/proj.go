// Package proj converts coordinates between geographic WGS84 and UTM zones.
//
// Supported codes are EPSG:4326, EPSG:326zz / 327zz (WGS84 UTM north/south)
// and EPSG:258zz (ETRS89 UTM north). Same-zone WGS84 and ETRS89 grids are
// treated as identical.
package proj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84"

	"github.com/sells-group/siteopt/internal/apperr"
)

// CRS is a parsed coordinate reference system.
type CRS struct {
	EPSG  int
	Zone  int  // UTM zone, 0 for geographic
	North bool // UTM hemisphere
}

// Geographic reports whether the CRS uses longitude/latitude degrees.
func (c CRS) Geographic() bool {
	return c.Zone == 0
}

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.EPSG)
}

// Parse reads an "EPSG:nnnn" code.
func Parse(code string) (CRS, error) {
	s := strings.TrimSpace(strings.ToUpper(code))
	s = strings.TrimPrefix(s, "EPSG:")
	n, err := strconv.Atoi(s)
	if err != nil {
		return CRS{}, apperr.Config("proj: unrecognised CRS %q", code)
	}
	switch {
	case n == 4326:
		return CRS{EPSG: n}, nil
	case n >= 32601 && n <= 32660:
		return CRS{EPSG: n, Zone: n - 32600, North: true}, nil
	case n >= 32701 && n <= 32760:
		return CRS{EPSG: n, Zone: n - 32700}, nil
	case n >= 25828 && n <= 25838:
		return CRS{EPSG: n, Zone: n - 25800, North: true}, nil
	default:
		return CRS{}, apperr.Config("proj: unsupported CRS EPSG:%d", n)
	}
}

// reference returns the library definition of c.
func (c CRS) reference() wgs84.CoordinateReferenceSystem {
	switch {
	case c.Geographic():
		return wgs84.LonLat()
	case c.EPSG >= 25828 && c.EPSG <= 25838:
		return wgs84.ETRS89UTM(float64(c.Zone))
	default:
		return wgs84.UTM(float64(c.Zone), c.North)
	}
}

// Transformer converts coordinates from one CRS to another.
type Transformer struct {
	from, to CRS
	forward  wgs84.Func
	inverse  wgs84.Func
}

// NewTransformer parses both codes and returns a transformer between them.
func NewTransformer(from, to string) (*Transformer, error) {
	f, err := Parse(from)
	if err != nil {
		return nil, err
	}
	t, err := Parse(to)
	if err != nil {
		return nil, err
	}
	return &Transformer{
		from:    f,
		to:      t,
		forward: wgs84.Transform(f.reference(), t.reference()),
		inverse: wgs84.Transform(t.reference(), f.reference()),
	}, nil
}

// From returns the source CRS.
func (t *Transformer) From() CRS { return t.from }

// To returns the target CRS.
func (t *Transformer) To() CRS { return t.to }

// Identity reports whether the transformer is a no-op.
func (t *Transformer) Identity() bool {
	return t.from.Zone == t.to.Zone && t.from.North == t.to.North
}

// Forward converts (x, y) from the source CRS to the target CRS.
func (t *Transformer) Forward(x, y float64) (float64, float64) {
	if t.Identity() {
		return x, y
	}
	ox, oy, _ := t.forward(x, y, 0)
	return ox, oy
}

// Inverse converts (x, y) from the target CRS back to the source CRS.
func (t *Transformer) Inverse(x, y float64) (float64, float64) {
	if t.Identity() {
		return x, y
	}
	ox, oy, _ := t.inverse(x, y, 0)
	return ox, oy
}

// Bounds reprojects an extent by transforming points along its edges and
// taking their envelope.
func (t *Transformer) Bounds(b *geom.Bounds) *geom.Bounds {
	out := geom.NewBounds(geom.XY)
	if t.Identity() {
		return out.Set(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	}
	const steps = 8
	minX, minY, maxX, maxY := b.Min(0), b.Min(1), b.Max(0), b.Max(1)
	for i := 0; i <= steps; i++ {
		f := float64(i) / steps
		x := minX + f*(maxX-minX)
		y := minY + f*(maxY-minY)
		for _, p := range [][2]float64{{x, minY}, {x, maxY}, {minX, y}, {maxX, y}} {
			px, py := t.Forward(p[0], p[1])
			out.Extend(geom.NewPointFlat(geom.XY, []float64{px, py}))
		}
	}
	return out
}
