package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/siteopt/internal/result"
)

// SheetName is the worksheet holding the selection records.
const SheetName = "selected_patches"

// WriteXLSX saves the records as a single-sheet workbook at path.
func WriteXLSX(path string, records []result.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, name := range ColumnNames() {
		header.AddCell().SetString(name)
	}
	for _, r := range records {
		row := sheet.AddRow()
		for _, c := range columns {
			cell := row.AddCell()
			switch v := c.Value(r).(type) {
			case int:
				cell.SetInt(v)
			case float64:
				cell.SetFloat(v)
			case string:
				cell.SetString(v)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save xlsx %s", path)
	}
	return nil
}
