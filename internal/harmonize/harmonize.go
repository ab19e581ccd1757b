// Package harmonize builds the harmonized country-year table: a UN-member
// × year grid with every configured indicator source left-joined on under
// dataset-prefixed column names. The scoring pipeline consumes its CSV
// output; the SQLite snapshot and column map are audit artifacts.
package harmonize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civimetric/robustness-cli/internal/fetcher"
)

// Options configures one build.
type Options struct {
	RawDir    string
	OutputDir string
	StartYear int
	EndYear   int

	// AllowMissing downgrades absent source files to a warning.
	AllowMissing bool

	// Sources overrides the source list. Nil means DefaultSources(RawDir).
	Sources []Source

	// Fetcher downloads the UN members list when no local copy exists.
	// Nil means a default HTTP fetcher.
	Fetcher fetcher.Fetcher
}

// Result reports what a build wrote.
type Result struct {
	CSVPath       string
	ColumnMapPath string
	SQLitePath    string
	Rows          int
	Columns       int
	Missing       []string
}

// Run harmonizes the configured sources into the country-year outputs.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.StartYear > opts.EndYear {
		return nil, eris.Errorf("harmonize: start year %d after end year %d", opts.StartYear, opts.EndYear)
	}
	sources := opts.Sources
	if sources == nil {
		sources = DefaultSources(opts.RawDir)
	}
	f := opts.Fetcher
	if f == nil {
		f = fetcher.NewHTTPFetcher(fetcher.Options{RateLimiters: fetcher.DefaultRateLimiters()})
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "harmonize: create output directory %s", opts.OutputDir)
	}

	// Resolve each source to its first existing path.
	paths := make(map[string]string, len(sources))
	var missing []string
	for _, src := range sources {
		path := firstExisting(src.Paths)
		if path == "" {
			missing = append(missing, src.Name)
			continue
		}
		paths[src.Name] = path
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		if !opts.AllowMissing {
			return nil, eris.Errorf(
				"harmonize: missing required sources: %s (add the files to %s or re-run with --allow-missing)",
				strings.Join(missing, ", "), opts.RawDir)
		}
		zap.L().Warn("missing sources", zap.Strings("sources", missing))
	}

	members, records, err := LoadMembers(ctx, opts.RawDir, f)
	if err != nil {
		return nil, err
	}
	var matcher *Matcher
	if len(records) > 0 {
		matcher = NewMatcher(records)
	} else {
		matcher = NewMatcherFromMembers(members)
	}

	frame := NewFrame(members, opts.StartYear, opts.EndYear)

	// Load present sources concurrently; merge in declaration order so
	// the output column layout is stable.
	type loaded struct {
		table    *sourceTable
		mappings []ColumnMapping
	}
	results := make([]*loaded, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		path, ok := paths[src.Name]
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, mappings, err := LoadSource(src, path, opts.StartYear, opts.EndYear, matcher)
			if err != nil {
				return err
			}
			results[i] = &loaded{table: st, mappings: mappings}
			zap.L().Info("source loaded",
				zap.String("dataset", src.Name),
				zap.String("path", path),
				zap.Int("rows", len(st.iso3)),
				zap.Int("columns", len(st.order)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mappings []ColumnMapping
	for _, l := range results {
		if l == nil {
			continue
		}
		frame.Merge(l.table)
		mappings = append(mappings, l.mappings...)
	}

	res := &Result{
		Rows:    frame.Len(),
		Columns: len(frame.Columns()),
		Missing: missing,
	}

	base := fmt.Sprintf("country_%d_%d", opts.StartYear, opts.EndYear)
	res.CSVPath = filepath.Join(opts.OutputDir, base+".csv")
	if err := frame.WriteCSV(res.CSVPath); err != nil {
		return nil, err
	}

	if len(mappings) > 0 {
		res.ColumnMapPath = filepath.Join(opts.OutputDir, "column_map.csv")
		if err := WriteColumnMap(res.ColumnMapPath, mappings); err != nil {
			return nil, err
		}
	}

	sqlitePath := filepath.Join(opts.OutputDir, base+".sqlite")
	if err := frame.WriteSQLite(sqlitePath); err != nil {
		zap.L().Warn("sqlite snapshot not written", zap.Error(err))
	} else {
		res.SQLitePath = sqlitePath
	}

	zap.L().Info("country dataset built",
		zap.Int("rows", res.Rows),
		zap.Int("columns", res.Columns),
		zap.String("csv", res.CSVPath),
	)
	return res, nil
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
