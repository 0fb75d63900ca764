// Package mssql implements storage.Repository for Microsoft SQL Server.
//
// Rows are written with set-based INSERT ... SELECT ... WHERE NOT EXISTS
// statements when dedupe columns are given. Unlike Postgres ON CONFLICT, SQL
// Server does not collapse duplicates inside the VALUES source, so each batch
// is deduplicated in memory first, keeping the first occurrence.
//
// This package does not import a driver; the "sqlserver" driver must be
// registered elsewhere (see storage/all).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage"
)

// maxParams stays under SQL Server's 2100 parameter limit.
const maxParams = 2000

// Repo implements storage.Repository.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: raw}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables creates missing tables behind an OBJECT_ID guard.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows inserts rows in chunks. With dedupeColumns set, only rows whose
// key is not already present are inserted.
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
	if table == "" {
		return 0, fmt.Errorf("InsertRows: table is empty")
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("InsertRows: columns is empty")
	}

	rows, err := dedupeRowsByColumns(rows, columns, dedupeColumns)
	if err != nil {
		return 0, fmt.Errorf("InsertRows: %w", err)
	}

	var total int64
	for _, part := range storage.ChunkRows(rows, len(columns), maxParams) {
		var q string
		var args []any
		if len(dedupeColumns) == 0 {
			q, args = buildBulkInsertSQL(table, columns, part)
		} else {
			q, args = buildInsertNotExistsSQL(table, columns, part, dedupeColumns)
		}

		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// dedupeRowsByColumns keeps the first row per dedupe key.
func dedupeRowsByColumns(rows [][]any, columns, dedupeColumns []string) ([][]any, error) {
	return storage.DedupeRows(rows, columns, dedupeColumns)
}

func mssqlType(kind string) (string, error) {
	switch kind {
	case storage.ColumnText:
		return "NVARCHAR(MAX)", nil
	case storage.ColumnHash:
		return "VARCHAR(64)", nil
	case storage.ColumnInt:
		return "BIGINT", nil
	case storage.ColumnFloat:
		return "FLOAT", nil
	case storage.ColumnBool:
		return "BIT", nil
	}
	return "", fmt.Errorf("unsupported column type %q", kind)
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var parts []string
	for _, c := range t.Columns {
		typ, err := mssqlType(c.Type)
		if err != nil {
			return "", fmt.Errorf("mssql: column %s: %w", c.Name, err)
		}
		def := mssqlIdent(c.Name) + " " + typ
		if c.IsNullable() {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
		parts = append(parts, def)
	}

	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return "", fmt.Errorf("%s unique constraint has no columns", t.Name)
		}
		var cols []string
		for _, c := range con.Columns {
			cols = append(cols, mssqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(t.Name, "'", "''"),
		mssqlTableIdent(t.Name),
		strings.Join(parts, ", "),
	), nil
}

// writeValues appends "(@p1, @p2), (...)" for rows and returns the args.
func writeValues(b *strings.Builder, ncol int, rows [][]any) []any {
	args := make([]any, 0, len(rows)*ncol)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < ncol; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

func identList(prefix string, columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = prefix + mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList("", columns))
	b.WriteString(") VALUES ")
	args := writeValues(&b, len(columns), rows)
	return b.String(), args
}

// buildInsertNotExistsSQL materializes rows as a derived table v and inserts
// only those not matching an existing row on dedupeColumns.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList("", columns))
	b.WriteString(") SELECT ")
	b.WriteString(identList("v.", columns))
	b.WriteString(" FROM (VALUES ")
	args := writeValues(&b, len(columns), rows)
	b.WriteString(") AS v(")
	b.WriteString(identList("", columns))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE ")
	for i, dc := range dedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(mssqlIdent(dc))
		b.WriteString(" = v.")
		b.WriteString(mssqlIdent(dc))
	}
	b.WriteString(")")
	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name:
// "dbo.listings" -> [dbo].[listings].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// dbConn is the slice of *sql.DB this package uses, so tests can fake it.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

var _ dbConn = (*sql.DB)(nil)
