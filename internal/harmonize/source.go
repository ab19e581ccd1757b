package harmonize

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/tabular"
)

// Source declares one upstream indicator file. Paths list the primary
// location first, then alternates; the first existing file is loaded.
type Source struct {
	// Name keys the dataset in the column map ("vdem", "fh", ...).
	Name string
	// Prefix goes in front of every sanitized value column ("vdem__").
	Prefix string
	// Paths are candidate file locations, tried in order.
	Paths []string
	// Sheet selects the XLSX worksheet. Empty means the first sheet.
	Sheet string
	// DefaultYear stamps every row when the file has no year column.
	// Zero means a missing year column is an error.
	DefaultYear int
}

// DefaultSources lists the eight indicator sources with their conventional
// file locations under rawDir.
func DefaultSources(rawDir string) []Source {
	p := func(name string) string { return filepath.Join(rawDir, name) }
	return []Source{
		{Name: "vdem", Prefix: "vdem__", Paths: []string{p("vdem_cy_full.csv"), p("vdem_cy_core.csv")}},
		{Name: "fh", Prefix: "fh__", Paths: []string{p("freedom_house_all_data.xlsx"), p("freedom_house_ratings.xlsx")}},
		{Name: "hrmi", Prefix: "hrmi__", Paths: []string{p("hrmi_rights_tracker.csv")}},
		{Name: "rsf", Prefix: "rsf__", Paths: []string{p("rsf_press_freedom.csv")}},
		{Name: "wgi", Prefix: "wgi__", Paths: []string{p("wgi.xlsx")}},
		{Name: "cpi", Prefix: "cpi__", Paths: []string{p("cpi.xlsx"), p("cpi.csv")}},
		{Name: "gsi", Prefix: "gsi__", Paths: []string{p("gsi_2023.csv")}, DefaultYear: 2023},
		{Name: "afi", Prefix: "afi__", Paths: []string{p("afi_core.csv")}},
	}
}

// ColumnMapping records where one harmonized column came from.
type ColumnMapping struct {
	Dataset      string
	SourceColumn string
	OutputColumn string
}

// Key-column headers seen across the eight source formats, matched
// case-insensitively in order.
var (
	iso3Candidates = []string{"iso3", "iso3c", "country_text_id", "country_code", "country_iso3", "cca3", "country code"}
	yearCandidates = []string{"year", "edition", "date"}
	nameCandidates = []string{"country/territory", "country", "territory", "country name", "jurisdiction"}
)

// sourceTable holds one loaded source keyed by (iso3, year), columns
// already sanitized and prefixed.
type sourceTable struct {
	iso3  []string
	year  []int
	order []string
	cols  map[string][]float64
}

func (st *sourceTable) addColumn(name string) []float64 {
	col := nanSlice(len(st.iso3))
	st.order = append(st.order, name)
	st.cols[name] = col
	return col
}

// keyed is one source record with its resolved (iso3, year) key.
type keyed struct {
	iso3 string
	year int
	rec  []string
}

// LoadSource reads one indicator file: detect the iso3 and year columns
// (falling back to country-name matching and the source's default year),
// filter to [startYear, endYear], uppercase the codes, pivot long-format
// files on their indicator column, and prefix every value column.
func LoadSource(src Source, path string, startYear, endYear int, m *Matcher) (*sourceTable, []ColumnMapping, error) {
	header, records, err := tabular.LoadRaw(path, tabular.ReadOptions{Sheet: src.Sheet})
	if err != nil {
		return nil, nil, err
	}

	isoIdx := findColumn(header, iso3Candidates)
	yearIdx := findColumn(header, yearCandidates)
	if yearIdx < 0 && src.DefaultYear == 0 {
		return nil, nil, eris.Errorf("harmonize: %s file %s has no year column", src.Name, path)
	}

	nameIdx := -1
	if isoIdx < 0 {
		nameIdx = findColumn(header, nameCandidates)
		if nameIdx < 0 {
			return nil, nil, eris.Errorf("harmonize: %s file %s has no iso3 or country name column", src.Name, path)
		}
	}
	indicatorIdx := findColumn(header, []string{"indicator"})

	// Resolve row keys first: unmatched names and out-of-range years drop
	// here, before any column work.
	var rows []keyed
	for _, rec := range records {
		var iso3 string
		if isoIdx >= 0 {
			iso3 = strings.ToUpper(strings.TrimSpace(cell(rec, isoIdx)))
		} else if matched, ok := m.Match(cell(rec, nameIdx)); ok {
			iso3 = matched
		}
		if iso3 == "" {
			continue
		}

		year := src.DefaultYear
		if yearIdx >= 0 {
			y, ok := parseYear(cell(rec, yearIdx))
			if !ok {
				continue
			}
			year = y
		}
		if year < startYear || year > endYear {
			continue
		}
		rows = append(rows, keyed{iso3: iso3, year: year, rec: rec})
	}

	keyCols := map[int]bool{}
	for _, idx := range []int{isoIdx, yearIdx, nameIdx, indicatorIdx} {
		if idx >= 0 {
			keyCols[idx] = true
		}
	}

	if indicatorIdx >= 0 {
		return pivotLong(src, header, keyCols, rows, indicatorIdx)
	}
	return loadWide(src, header, keyCols, rows)
}

// loadWide emits one output row per (iso3, year); the first record for a
// key wins.
func loadWide(src Source, header []string, keyCols map[int]bool, rows []keyed) (*sourceTable, []ColumnMapping, error) {
	seen := map[[2]string]bool{}
	var kept []keyed
	for _, r := range rows {
		key := rowKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}

	st := &sourceTable{cols: map[string][]float64{}}
	for _, r := range kept {
		st.iso3 = append(st.iso3, r.iso3)
		st.year = append(st.year, r.year)
	}

	used := map[string]bool{}
	var mappings []ColumnMapping
	for i, h := range header {
		if keyCols[i] {
			continue
		}
		name := uniqueName(src.Prefix+safeCol(h), used)
		mappings = append(mappings, ColumnMapping{Dataset: src.Name, SourceColumn: h, OutputColumn: name})
		col := st.addColumn(name)
		for at, r := range kept {
			col[at] = parseValue(cell(r.rec, i))
		}
	}
	return st, mappings, nil
}

// pivotLong reshapes a long-format source (one record per indicator) into
// wide columns named prefix + value column + "__" + indicator. The first
// value per (iso3, year, indicator) wins.
func pivotLong(src Source, header []string, keyCols map[int]bool, rows []keyed, indicatorIdx int) (*sourceTable, []ColumnMapping, error) {
	st := &sourceTable{cols: map[string][]float64{}}
	rowAt := map[[2]string]int{}
	for _, r := range rows {
		key := rowKey(r)
		if _, ok := rowAt[key]; ok {
			continue
		}
		rowAt[key] = len(st.iso3)
		st.iso3 = append(st.iso3, r.iso3)
		st.year = append(st.year, r.year)
	}

	type pivotKey struct {
		col int
		ind string
	}
	colFor := map[pivotKey]string{}
	used := map[string]bool{}
	var mappings []ColumnMapping

	for _, r := range rows {
		ind := safeCol(cell(r.rec, indicatorIdx))
		if ind == "" {
			continue
		}
		at := rowAt[rowKey(r)]
		for i, h := range header {
			if keyCols[i] {
				continue
			}
			pk := pivotKey{col: i, ind: ind}
			name, ok := colFor[pk]
			if !ok {
				name = uniqueName(src.Prefix+safeCol(h)+"__"+ind, used)
				colFor[pk] = name
				mappings = append(mappings, ColumnMapping{
					Dataset:      src.Name,
					SourceColumn: h + "__" + ind,
					OutputColumn: name,
				})
				st.addColumn(name)
			}
			col := st.cols[name]
			if math.IsNaN(col[at]) {
				col[at] = parseValue(cell(r.rec, i))
			}
		}
	}
	return st, mappings, nil
}

func rowKey(r keyed) [2]string {
	return [2]string{r.iso3, strconv.Itoa(r.year)}
}

var (
	safeColRe    = regexp.MustCompile(`[^a-z0-9_]+`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// safeCol sanitizes a source header into a sqlite-friendly column name.
func safeCol(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = safeColRe.ReplaceAllString(name, "_")
	name = underscoreRe.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// uniqueName suffixes _2, _3, ... until the name is unused.
func uniqueName(name string, used map[string]bool) string {
	out := name
	for i := 2; used[out]; i++ {
		out = fmt.Sprintf("%s_%d", name, i)
	}
	used[out] = true
	return out
}

func findColumn(header []string, candidates []string) int {
	for _, c := range candidates {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), c) {
				return i
			}
		}
	}
	return -1
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

// parseYear accepts integer years and float renderings like "2020.0".
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func parseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
