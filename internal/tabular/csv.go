package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// ReadOptions control how raw dataset files are decoded.
type ReadOptions struct {
	// Delimiter overrides the CSV field separator. Zero means comma.
	Delimiter rune
	// Charset names the source text encoding, for example "windows-1252".
	// Empty means UTF-8. CSV only.
	Charset string
	// Sheet selects the XLSX worksheet by name. Empty means the first
	// sheet. XLSX only.
	Sheet string
}

// LoadTable reads path as XLSX or CSV based on its extension.
func LoadTable(path string, opts ReadOptions) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts)
	default:
		return ReadCSV(path, opts)
	}
}

// ReadCSV loads a dataset from a CSV file.
func ReadCSV(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close()
	t, err := ParseCSV(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return t, nil
}

// ParseCSV decodes CSV data from r. The first record is the header and must
// contain iso3 and year columns; every other column is parsed as float64
// with empty or non-numeric cells recorded as NaN.
func ParseCSV(r io.Reader, opts ReadOptions) (*Table, error) {
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: unknown charset %q", opts.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read header")
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read rows")
	}
	return buildTable(header, records)
}
