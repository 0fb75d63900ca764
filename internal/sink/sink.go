// Package sink loads extracted record sets into a storage.Repository.
package sink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/metrics"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/recordio"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/transformer/builtin"
)

// DefaultHashColumn is the dedupe column added to every stored table.
const DefaultHashColumn = "row_hash"

// Options controls Load.
type Options struct {
	Table string

	// BatchSize is the number of rows per InsertRows call. Defaults to 500.
	BatchSize int

	// HashColumn names the dedupe column. Defaults to DefaultHashColumn.
	HashColumn string

	// HashExclude lists columns left out of the row hash, e.g. "rank" when
	// listing order is not part of a record's identity.
	HashExclude []string

	// ListSeparator joins list values into text columns.
	ListSeparator string
}

// Result reports what one Load wrote.
type Result struct {
	Rows       int
	Written    int64
	Duplicates int64
}

// Loader writes record sets to a repository.
type Loader struct {
	repo   storage.Repository
	opts   Options
	logger *zap.Logger
}

// New returns a Loader. A nil logger is replaced with a no-op logger.
func New(repo storage.Repository, opts Options, logger *zap.Logger) (*Loader, error) {
	if repo == nil {
		return nil, fmt.Errorf("sink: nil repository")
	}
	if opts.Table == "" {
		return nil, fmt.Errorf("sink: missing table")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.HashColumn == "" {
		opts.HashColumn = DefaultHashColumn
	}
	if opts.ListSeparator == "" {
		opts.ListSeparator = recordio.DefaultListSeparator
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{repo: repo, opts: opts, logger: logger}, nil
}

// Load creates the table if needed and inserts every record, skipping rows
// whose hash is already stored.
func (l *Loader) Load(ctx context.Context, rs extracthtml.RecordSet) (res Result, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ObserveDuration("load", status, start)
	}()

	cols := tableColumns(rs, l.opts.HashColumn)
	spec := storage.TableSpec{
		Name:        l.opts.Table,
		Columns:     cols,
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{l.opts.HashColumn}}},
	}
	if err := l.repo.EnsureTables(ctx, []storage.TableSpec{spec}); err != nil {
		return res, fmt.Errorf("ensure table %s: %w", l.opts.Table, err)
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	records := append([]extracthtml.Record(nil), rs.Records...)
	for i := range records {
		records[i] = cloneRecord(records[i])
	}
	builtin.Hash{
		Fields:            hashFields(names, l.opts.HashColumn, l.opts.HashExclude),
		TargetField:       l.opts.HashColumn,
		IncludeFieldNames: true,
		TrimSpace:         true,
		Overwrite:         true,
	}.Apply(records)

	res.Rows = len(records)
	for start := 0; start < len(records); start += l.opts.BatchSize {
		end := min(start+l.opts.BatchSize, len(records))

		rows := make([][]any, 0, end-start)
		for _, r := range records[start:end] {
			rows = append(rows, l.row(r, cols))
		}

		n, err := l.repo.InsertRows(ctx, l.opts.Table, names, rows, []string{l.opts.HashColumn})
		if err != nil {
			return res, fmt.Errorf("insert rows %d-%d into %s: %w", start, end, l.opts.Table, err)
		}
		res.Written += n
		l.logger.Debug("batch inserted",
			zap.String("table", l.opts.Table),
			zap.Int("rows", len(rows)),
			zap.Int64("written", n),
		)
	}
	res.Duplicates = int64(res.Rows) - res.Written

	metrics.IncCounter("load_rows_total", float64(res.Written), metrics.Labels{"kind": "inserted"})
	metrics.IncCounter("load_rows_total", float64(res.Duplicates), metrics.Labels{"kind": "duplicate"})
	l.logger.Info("records loaded",
		zap.String("table", l.opts.Table),
		zap.Int("rows", res.Rows),
		zap.Int64("written", res.Written),
		zap.Int64("duplicates", res.Duplicates),
	)
	return res, nil
}

// tableColumns maps the record schema to storage columns. Fields added after
// extraction (such as source_file) become text columns; the hash column
// comes last.
func tableColumns(rs extracthtml.RecordSet, hashCol string) []storage.ColumnSpec {
	seen := map[string]bool{hashCol: true}
	var cols []storage.ColumnSpec
	for _, c := range rs.Schema {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		cols = append(cols, storage.ColumnSpec{Name: c.Name, Type: columnType(c.Type)})
	}
	for _, r := range rs.Records {
		for _, f := range r.Fields {
			if !seen[f] {
				seen[f] = true
				cols = append(cols, storage.ColumnSpec{Name: f, Type: storage.ColumnText})
			}
		}
	}
	notNull := false
	return append(cols, storage.ColumnSpec{Name: hashCol, Type: storage.ColumnHash, Nullable: &notNull})
}

func columnType(t string) string {
	switch t {
	case extracthtml.TypeInt:
		return storage.ColumnInt
	case extracthtml.TypeFloat:
		return storage.ColumnFloat
	case extracthtml.TypeBool:
		return storage.ColumnBool
	}
	return storage.ColumnText
}

func hashFields(names []string, hashCol string, exclude []string) []string {
	skip := map[string]bool{hashCol: true}
	for _, e := range exclude {
		skip[e] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !skip[n] {
			out = append(out, n)
		}
	}
	return out
}

// row converts r to driver values aligned with cols.
func (l *Loader) row(r extracthtml.Record, cols []storage.ColumnSpec) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		v, _ := r.Get(c.Name)
		switch t := v.(type) {
		case nil:
			out[i] = nil
		case int:
			out[i] = int64(t)
		case []string:
			out[i] = recordio.FormatValue(t, l.opts.ListSeparator)
		case string, int64, float64, bool:
			out[i] = t
		default:
			if c.Type == storage.ColumnText {
				out[i] = recordio.FormatValue(t, l.opts.ListSeparator)
			} else {
				out[i] = t
			}
		}
	}
	return out
}

func cloneRecord(r extracthtml.Record) extracthtml.Record {
	out := extracthtml.Record{
		Fields: append([]string(nil), r.Fields...),
		Values: make(map[string]any, len(r.Values)+1),
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}
