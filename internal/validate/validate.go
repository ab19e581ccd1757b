// Package validate checks the generated pipeline artifacts: the harmonized
// country-year outputs from build and the scoring outputs from calibrate
// and assess. Problems accumulate as errors and warnings rather than
// stopping at the first finding.
package validate

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// datasetPrefixes are the harmonizer's output column prefixes.
var datasetPrefixes = []string{
	"vdem__", "fh__", "hrmi__", "rsf__", "wgi__", "cpi__", "gsi__", "afi__",
}

// assessmentColumns are the columns every assessment CSV must carry.
var assessmentColumns = []string{
	"iso3", "year", "A", "G", "M", "P", "S_norm", "decline_norm",
	"risk_score", "risk_band",
}

// Options configures one validation pass.
type Options struct {
	OutputDir string
	StartYear int
	EndYear   int

	// RequireOptional treats missing optional outputs as errors.
	RequireOptional bool
}

// Context accumulates findings. Errors fail the run; warnings do not.
type Context struct {
	Errors   []string
	Warnings []string
}

func (c *Context) errorf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}

func (c *Context) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// OK reports whether no errors were found.
func (c *Context) OK() bool { return len(c.Errors) == 0 }

// Run validates the artifacts under opts.OutputDir. Core files (the
// harmonized country CSV and the column map) must exist; the SQLite
// snapshot, assessment CSV and thresholds JSON are optional unless
// RequireOptional is set.
func Run(opts Options) *Context {
	ctx := &Context{}
	base := fmt.Sprintf("country_%d_%d", opts.StartYear, opts.EndYear)

	core := []struct {
		name  string
		check func(string, *Context)
	}{
		{base + ".csv", checkCountryCSV},
		{"column_map.csv", checkColumnMap},
	}
	for _, f := range core {
		path := filepath.Join(opts.OutputDir, f.name)
		if _, err := os.Stat(path); err != nil {
			ctx.errorf("%s: missing required output", path)
			continue
		}
		f.check(path, ctx)
	}

	optional := []struct {
		name  string
		check func(string, *Context)
	}{
		{base + ".sqlite", checkCountrySQLite},
		{fmt.Sprintf("country_robustness_%d_%d.csv", opts.StartYear, opts.EndYear), checkAssessmentCSV},
		{"robustness_thresholds.json", checkThresholdsJSON},
	}
	for _, f := range optional {
		path := filepath.Join(opts.OutputDir, f.name)
		if _, err := os.Stat(path); err != nil {
			if opts.RequireOptional {
				ctx.errorf("%s: missing optional output (required by flag)", path)
			} else {
				ctx.warnf("%s: optional output missing", path)
			}
			continue
		}
		f.check(path, ctx)
	}

	return ctx
}

// readHeaderAndSample reads a CSV header plus up to maxRows data rows.
func readHeaderAndSample(path string, maxRows int) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "validate: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil
	}
	var rows [][]string
	for len(rows) < maxRows {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

func requireColumns(ctx *Context, path string, header, required []string) {
	var missing []string
	for _, col := range required {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		ctx.errorf("%s: missing required columns: %s", path, strings.Join(missing, ", "))
	}
}

func sampleCell(header, row []string, col string) string {
	for i, h := range header {
		if h == col && i < len(row) {
			return row[i]
		}
	}
	return ""
}

func checkCountryCSV(path string, ctx *Context) {
	header, rows, err := readHeaderAndSample(path, 5)
	if err != nil {
		ctx.errorf("%s: %v", path, err)
		return
	}
	if len(header) == 0 {
		ctx.errorf("%s: missing header", path)
		return
	}
	requireColumns(ctx, path, header, []string{"iso3", "year", "country_name"})

	prefixed := false
	for _, h := range header {
		for _, p := range datasetPrefixes {
			if strings.HasPrefix(h, p) {
				prefixed = true
			}
		}
	}
	if !prefixed {
		ctx.errorf("%s: missing dataset-prefixed columns (expected one of %s)",
			path, strings.Join(datasetPrefixes, ", "))
	}

	if len(rows) == 0 {
		ctx.errorf("%s: no data rows found", path)
		return
	}

	sample := rows[0]
	iso3 := strings.TrimSpace(sampleCell(header, sample, "iso3"))
	if len(iso3) != 3 {
		ctx.errorf("%s: sample iso3 value should be 3 characters, got %q", path, iso3)
	}
	year := strings.TrimSpace(sampleCell(header, sample, "year"))
	if year == "" {
		ctx.errorf("%s: sample year value is empty", path)
	} else if _, err := strconv.ParseFloat(year, 64); err != nil {
		ctx.errorf("%s: sample year value not numeric: %q", path, year)
	}
}

func checkColumnMap(path string, ctx *Context) {
	header, rows, err := readHeaderAndSample(path, 200)
	if err != nil {
		ctx.errorf("%s: %v", path, err)
		return
	}
	if len(header) == 0 {
		ctx.errorf("%s: missing header", path)
		return
	}
	requireColumns(ctx, path, header, []string{"dataset", "source_column", "output_column"})
	if len(rows) == 0 {
		ctx.errorf("%s: no mappings found", path)
		return
	}

	known := map[string]bool{}
	for _, p := range datasetPrefixes {
		known[strings.TrimSuffix(p, "__")] = true
	}
	unknownSet := map[string]bool{}
	for _, row := range rows {
		ds := sampleCell(header, row, "dataset")
		if ds != "" && !known[ds] {
			unknownSet[ds] = true
		}
	}
	if len(unknownSet) > 0 {
		var unknown []string
		for ds := range unknownSet {
			unknown = append(unknown, ds)
		}
		sort.Strings(unknown)
		ctx.warnf("%s: unexpected dataset names in sample: %s", path, strings.Join(unknown, ", "))
	}
}

func checkCountrySQLite(path string, ctx *Context) {
	info, err := os.Stat(path)
	if err == nil && info.Size() == 0 {
		ctx.warnf("%s: sqlite file is empty (likely due to column limits)", path)
		return
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		ctx.errorf("%s: unable to open sqlite db: %v", path, err)
		return
	}
	defer db.Close() //nolint:errcheck

	var name string
	err = db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'country_year'").Scan(&name)
	if err != nil {
		ctx.errorf("%s: missing country_year table", path)
		return
	}

	cols := map[string]bool{}
	rows, err := db.Query("PRAGMA table_info(country_year)")
	if err != nil {
		ctx.errorf("%s: sqlite validation error: %v", path, err)
		return
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			ctx.errorf("%s: sqlite validation error: %v", path, err)
			return
		}
		cols[colName] = true
	}
	for _, col := range []string{"iso3", "year"} {
		if !cols[col] {
			ctx.errorf("%s: country_year missing column %q", path, col)
		}
	}

	var one int
	if err := db.QueryRow("SELECT 1 FROM country_year LIMIT 1").Scan(&one); err != nil {
		ctx.errorf("%s: country_year table has no rows", path)
	}
}

func checkAssessmentCSV(path string, ctx *Context) {
	header, rows, err := readHeaderAndSample(path, 5)
	if err != nil {
		ctx.errorf("%s: %v", path, err)
		return
	}
	if len(header) == 0 {
		ctx.errorf("%s: missing header", path)
		return
	}
	requireColumns(ctx, path, header, assessmentColumns)
	if len(rows) == 0 {
		ctx.errorf("%s: no data rows found", path)
	}
}

func checkThresholdsJSON(path string, ctx *Context) {
	data, err := os.ReadFile(path)
	if err != nil {
		ctx.errorf("%s: unable to read JSON: %v", path, err)
		return
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		ctx.errorf("%s: unable to read JSON: %v", path, err)
		return
	}
	for _, key := range []string{"thresholds", "quantiles"} {
		if _, ok := payload[key]; !ok {
			ctx.errorf("%s: missing %q section", path, key)
		}
	}
}
