package export

import (
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/result"
)

// WriteCSV writes one row per record with a header.
func WriteCSV(w io.Writer, records []result.Record) error {
	if len(records) == 0 {
		_, err := io.WriteString(w, strings.Join(ColumnNames(), ",")+"\n")
		return eris.Wrap(err, "export: write csv header")
	}
	data, err := csvutil.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "export: marshal csv")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "export: write csv")
}

// ReadCSV loads records written by WriteCSV. Geometry is not restored.
func ReadCSV(r io.Reader) ([]result.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "export: read csv")
	}
	var records []result.Record
	if err := csvutil.Unmarshal(data, &records); err != nil {
		return nil, apperr.WrapInput(err, "export: parse csv")
	}
	return records, nil
}
