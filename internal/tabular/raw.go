package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// LoadRaw reads path as XLSX or CSV based on its extension and returns the
// header row plus the remaining records as strings. Unlike LoadTable it
// imposes no key-column schema; the harmonizer detects iso3 and year
// columns itself.
func LoadRaw(path string, opts ReadOptions) ([]string, [][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadRawXLSX(path, opts)
	default:
		return ReadRawCSV(path, opts)
	}
}

// ReadRawCSV reads a CSV file into a header row and string records.
func ReadRawCSV(path string, opts ReadOptions) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "tabular: unknown charset %q", opts.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.FieldsPerRecord = -1

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	if len(all) == 0 {
		return nil, nil, eris.Errorf("tabular: read %s: file is empty", path)
	}
	return all[0], all[1:], nil
}

// ReadRawXLSX reads an XLSX worksheet into a header row and string records.
func ReadRawXLSX(path string, opts ReadOptions) ([]string, [][]string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	sheet, err := getSheet(wb, opts.Sheet)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.Errorf("tabular: read %s: sheet %q is empty", path, sheet.Name)
	}

	header := rowToStrings(sheet.Rows[0])
	records := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		records = append(records, rowToStrings(row))
	}
	return header, records, nil
}
