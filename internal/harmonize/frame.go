package harmonize

import (
	"database/sql"
	"encoding/csv"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Frame is the harmonized country-year grid: every UN member crossed with
// every year in range, source columns left-joined on.
type Frame struct {
	ISO3        []string
	Year        []int
	CountryName []string

	order []string
	cols  map[string][]float64
}

// NewFrame builds the base grid from the member list, sorted by
// (iso3, year).
func NewFrame(members []Member, startYear, endYear int) *Frame {
	byISO3 := map[string]string{}
	var codes []string
	for _, m := range members {
		if _, ok := byISO3[m.ISO3]; !ok {
			codes = append(codes, m.ISO3)
			byISO3[m.ISO3] = m.Name
		} else if byISO3[m.ISO3] == "" {
			byISO3[m.ISO3] = m.Name
		}
	}
	sort.Strings(codes)

	f := &Frame{cols: map[string][]float64{}}
	for _, iso3 := range codes {
		for year := startYear; year <= endYear; year++ {
			f.ISO3 = append(f.ISO3, iso3)
			f.Year = append(f.Year, year)
			f.CountryName = append(f.CountryName, byISO3[iso3])
		}
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.ISO3) }

// Columns lists the merged value columns in merge order.
func (f *Frame) Columns() []string { return f.order }

// Column returns the named value column, or nil when absent.
func (f *Frame) Column(name string) []float64 { return f.cols[name] }

// Merge left-joins a source table onto the frame by (iso3, year). Rows
// outside the member grid are dropped; frame rows without a source match
// stay NaN. The frame's row count never changes.
func (f *Frame) Merge(st *sourceTable) {
	rowAt := make(map[[2]string]int, f.Len())
	for i := range f.ISO3 {
		rowAt[[2]string{f.ISO3[i], strconv.Itoa(f.Year[i])}] = i
	}

	for _, name := range st.order {
		src := st.cols[name]
		dst := nanSlice(f.Len())
		for j := range st.iso3 {
			if at, ok := rowAt[[2]string{st.iso3[j], strconv.Itoa(st.year[j])}]; ok {
				dst[at] = src[j]
			}
		}
		if _, exists := f.cols[name]; !exists {
			f.order = append(f.order, name)
		}
		f.cols[name] = dst
	}
}

// WriteCSV writes the frame as iso3, year, country_name, then the merged
// columns. Undefined cells are empty.
func (f *Frame) WriteCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "harmonize: create %s", path)
	}
	defer file.Close() //nolint:errcheck

	cw := csv.NewWriter(file)
	header := append([]string{"iso3", "year", "country_name"}, f.order...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "harmonize: write CSV header")
	}

	rec := make([]string, len(header))
	for i := range f.ISO3 {
		rec[0] = f.ISO3[i]
		rec[1] = strconv.Itoa(f.Year[i])
		rec[2] = f.CountryName[i]
		for j, name := range f.order {
			v := f.cols[name][i]
			if math.IsNaN(v) {
				rec[3+j] = ""
			} else {
				rec[3+j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "harmonize: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "harmonize: flush CSV")
}

// WriteColumnMap writes the dataset/source_column/output_column records.
func WriteColumnMap(path string, mappings []ColumnMapping) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "harmonize: create %s", path)
	}
	defer file.Close() //nolint:errcheck

	cw := csv.NewWriter(file)
	if err := cw.Write([]string{"dataset", "source_column", "output_column"}); err != nil {
		return eris.Wrap(err, "harmonize: write column map header")
	}
	for _, m := range mappings {
		if err := cw.Write([]string{m.Dataset, m.SourceColumn, m.OutputColumn}); err != nil {
			return eris.Wrap(err, "harmonize: write column map row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "harmonize: flush column map")
}

// WriteSQLite snapshots the frame into a country_year table. Very wide
// frames can exceed SQLite's column limit; the caller treats a failure
// here as a warning, not a build failure.
func (f *Frame) WriteSQLite(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "harmonize: remove stale %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "harmonize: open sqlite snapshot")
	}
	defer db.Close() //nolint:errcheck

	ddl := make([]string, 0, len(f.order)+3)
	ddl = append(ddl, `"iso3" TEXT NOT NULL`, `"year" INTEGER NOT NULL`, `"country_name" TEXT`)
	for _, name := range f.order {
		ddl = append(ddl, `"`+name+`" REAL`)
	}
	if _, err := db.Exec("CREATE TABLE country_year (" + strings.Join(ddl, ", ") + ")"); err != nil {
		return eris.Wrap(err, "harmonize: create country_year table")
	}

	placeholders := make([]string, len(f.order)+3)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insert := "INSERT INTO country_year VALUES (" + strings.Join(placeholders, ", ") + ")"

	tx, err := db.Begin()
	if err != nil {
		return eris.Wrap(err, "harmonize: begin snapshot transaction")
	}
	stmt, err := tx.Prepare(insert)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return eris.Wrap(err, "harmonize: prepare snapshot insert")
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(f.order)+3)
	for i := range f.ISO3 {
		args[0] = f.ISO3[i]
		args[1] = f.Year[i]
		args[2] = f.CountryName[i]
		for j, name := range f.order {
			v := f.cols[name][i]
			if math.IsNaN(v) {
				args[3+j] = nil
			} else {
				args[3+j] = v
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrap(err, "harmonize: insert snapshot row")
		}
	}
	return eris.Wrap(tx.Commit(), "harmonize: commit snapshot")
}
