package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage"
)

// maxParams is the Postgres bind parameter limit.
const maxParams = 65535

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pgx pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates missing schemas and tables. It is idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		schemaSQL, tableSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows performs bulk INSERTs inside one transaction.
//
// If dedupeColumns is non-empty, each INSERT ends with
//
//	ON CONFLICT (<dedupeColumns...>) DO NOTHING
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
		return 0, fmt.Errorf("postgres: InsertRows: columns is empty")
	}

	var total int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, part := range storage.ChunkRows(rows, len(columns), maxParams) {
			q, args := buildInsertSQL(table, columns, part, dedupeColumns)
			cmd, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return err
			}
			total += cmd.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// rows must have the same length as columns for every row.
func buildInsertSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(dedupeColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range dedupeColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	b.WriteString(";")
	return b.String(), args
}

func pgType(kind string) (string, error) {
	switch kind {
	case storage.ColumnText:
		return "text", nil
	case storage.ColumnHash:
		return "varchar(64)", nil
	case storage.ColumnInt:
		return "bigint", nil
	case storage.ColumnFloat:
		return "double precision", nil
	case storage.ColumnBool:
		return "boolean", nil
	}
	return "", fmt.Errorf("unsupported column type %q", kind)
}

// buildCreateSQL returns an optional CREATE SCHEMA for qualified names and
// the CREATE TABLE statement.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("table %s: no columns", t.Name)
	}

	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema) + ";"
	}

	defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		typ, err := pgType(c.Type)
		if err != nil {
			return "", "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := pgIdent(c.Name) + " " + typ
		if !c.IsNullable() {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	for _, c := range t.Constraints {
		if !strings.EqualFold(strings.TrimSpace(c.Kind), "unique") {
			return "", "", fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
		if len(c.Columns) == 0 {
			return "", "", fmt.Errorf("table %s: unique constraint requires columns", t.Name)
		}
		cols := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			cols[i] = pgIdent(strings.TrimSpace(col))
		}
		defs = append(defs, "UNIQUE ("+strings.Join(cols, ", ")+")")
	}

	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", pgTableIdent(t.Name), strings.Join(defs, ",\n  "))
	return schemaSQL, tableSQL, nil
}

// splitQualifiedName splits "public.listings" into ("public", "listings").
// Names with more or fewer than one dot are treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

func pgTableIdent(name string) string {
	if schema, table := splitQualifiedName(name); schema != "" {
		return pgx.Identifier{schema, table}.Sanitize()
	}
	return pgIdent(name)
}
