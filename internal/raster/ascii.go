package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteopt/internal/apperr"
)

// DefaultNoData is written for undefined cells when a layer has no marker of its own.
const DefaultNoData = -9999.0

// ReadASCII parses an ESRI ASCII grid. Both corner and centre registration
// (xllcorner / xllcenter) are accepted; cells must be square.
func ReadASCII(r io.Reader, name, crs string) (*Layer, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if !isHeaderKey(key) {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, apperr.Input("raster: %s: header %s has no value", name, key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, apperr.WrapInput(err, fmt.Sprintf("raster: %s: parse header %s", name, key))
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.WrapInput(err, fmt.Sprintf("raster: %s: scan", name))
	}

	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, apperr.Input("raster: %s: missing header %s", name, k)
		}
	}
	cols, rows, size := int(header["ncols"]), int(header["nrows"]), header["cellsize"]
	if cols <= 0 || rows <= 0 || size <= 0 {
		return nil, apperr.Input("raster: %s: invalid shape %dx%d cellsize %g", name, rows, cols, size)
	}

	var left, bottom float64
	switch {
	case hasKeys(header, "xllcorner", "yllcorner"):
		left, bottom = header["xllcorner"], header["yllcorner"]
	case hasKeys(header, "xllcenter", "yllcenter"):
		left, bottom = header["xllcenter"]-size/2, header["yllcenter"]-size/2
	default:
		return nil, apperr.Input("raster: %s: missing lower-left origin", name)
	}
	top := bottom + float64(rows)*size

	layer := NewLayer(name, rows, cols, NorthUp(left, top, size), crs)
	if nd, ok := header["nodata_value"]; ok {
		layer.NoData, layer.HasNoData = nd, true
	}

	n := rows * cols
	idx := 0
	if first != "" {
		v, err := parseValue(first)
		if err != nil {
			return nil, apperr.WrapInput(err, fmt.Sprintf("raster: %s: value 0", name))
		}
		layer.Data[idx] = v
		idx++
	}
	for idx < n && sc.Scan() {
		v, err := parseValue(sc.Text())
		if err != nil {
			return nil, apperr.WrapInput(err, fmt.Sprintf("raster: %s: value %d", name, idx))
		}
		layer.Data[idx] = v
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.WrapInput(err, fmt.Sprintf("raster: %s: scan", name))
	}
	if idx != n {
		return nil, apperr.Input("raster: %s: expected %d values, got %d", name, n, idx)
	}
	return layer, nil
}

// WriteASCII encodes the layer as an ESRI ASCII grid. NaN cells are written
// as the layer's no-data marker (or DefaultNoData).
func WriteASCII(w io.Writer, l *Layer) error {
	t := l.Transform
	if !t.IsNorthUp() || t.A != -t.E {
		return eris.Errorf("raster: %s: ascii grids need square north-up pixels", l.Name)
	}
	nodata := DefaultNoData
	if l.HasNoData {
		nodata = l.NoData
	}
	bw := bufio.NewWriter(w)
	bottom := t.F + t.E*float64(l.Rows)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\nNODATA_value %s\n",
		l.Cols, l.Rows, formatFloat(t.C), formatFloat(bottom), formatFloat(t.A), formatFloat(nodata))
	for r := 0; r < l.Rows; r++ {
		for c := 0; c < l.Cols; c++ {
			if c > 0 {
				_ = bw.WriteByte(' ')
			}
			v := l.At(r, c)
			if math.IsNaN(v) {
				v = nodata
			}
			_, _ = bw.WriteString(formatFloat(v))
		}
		_ = bw.WriteByte('\n')
	}
	return eris.Wrap(bw.Flush(), "raster: flush ascii grid")
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

func hasKeys(m map[string]float64, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func parseValue(s string) (float64, error) {
	if strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
