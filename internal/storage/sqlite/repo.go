package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage"
)

// maxParams stays under SQLite's default host parameter limit.
const maxParams = 32000

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or "file:" URI).
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables runs CREATE TABLE IF NOT EXISTS for every table.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows performs multi-row inserts.
//
// If dedupeColumns is non-empty, uses "INSERT OR IGNORE" which requires a
// UNIQUE constraint matching those columns in the destination table.
func (r *Repo) InsertRows(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	dedupeColumns []string,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: InsertRows: columns is empty")
	}

	var total int64
	for _, part := range storage.ChunkRows(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(table, columns, part, len(dedupeColumns) > 0)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlType(kind string) (string, error) {
	switch kind {
	case storage.ColumnText, storage.ColumnHash:
		return "TEXT", nil
	case storage.ColumnInt, storage.ColumnBool:
		return "INTEGER", nil
	case storage.ColumnFloat:
		return "REAL", nil
	}
	return "", fmt.Errorf("unsupported column type %q", kind)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	parts := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		typ, err := sqlType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
		}
		col := sqlIdent(c.Name) + " " + typ
		if !c.IsNullable() {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		var cols []string
		for _, c := range con.Columns {
			cols = append(cols, sqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func buildInsertSQL(table string, columns []string, rows [][]any, orIgnore bool) (string, []any) {
	var b strings.Builder
	if orIgnore {
		b.WriteString("INSERT OR IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}
