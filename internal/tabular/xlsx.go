package tabular

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX loads a dataset from an XLSX workbook. The first row of the
// selected sheet is the header.
func ReadXLSX(path string, opts ReadOptions) (*Table, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	sheet, err := getSheet(wb, opts.Sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("tabular: read %s: sheet %q is empty", path, sheet.Name)
	}

	header := rowToStrings(sheet.Rows[0])
	records := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		records = append(records, rowToStrings(row))
	}

	t, err := buildTable(header, records)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return t, nil
}

func getSheet(wb *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(wb.Sheets) == 0 {
			return nil, eris.New("workbook has no sheets")
		}
		return wb.Sheets[0], nil
	}
	sheet, ok := wb.Sheet[name]
	if !ok {
		return nil, eris.Errorf("workbook has no sheet %q", name)
	}
	return sheet, nil
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}
