package mssql

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeDB struct {
	queries []string
	args    [][]any
}

func (f *fakeDB) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return fakeResult(len(args)), nil
}

func (f *fakeDB) Close() error { return nil }

func TestDedupeRowsByColumns_StableAndCorrect(t *testing.T) {
	// SQL Server does not collapse duplicate keys inside a VALUES source, so a
	// batch must keep exactly one row per dedupe key: the first occurrence.
	columns := []string{"name", "phone", "rank"}
	dedupeCols := []string{"name", "phone"}

	rows := [][]any{
		{"Acme", "555-1", 1},
		{"Acme", "555-1", 2}, // duplicate key, should be dropped
		{"Beta", "555-9", 3},
		{"Acme", "555-1", 4}, // duplicate key, should be dropped
		{"Acme", "555-2", 5},
	}

	got, err := dedupeRowsByColumns(rows, columns, dedupeCols)
	if err != nil {
		t.Fatalf("dedupeRowsByColumns returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows after dedupe, got %d", len(got))
	}
	if got[0][2] != 1 || got[1][2] != 3 || got[2][2] != 5 {
		t.Fatalf("unexpected rows kept: %v", got)
	}
}

func TestDedupeRowsByColumns_MissingColumnErrors(t *testing.T) {
	_, err := dedupeRowsByColumns([][]any{{1, 2}}, []string{"a", "b"}, []string{"missing"})
	if err == nil {
		t.Fatalf("expected error for missing dedupe column, got nil")
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	t.Parallel()

	q, args := buildInsertNotExistsSQL("dbo.listings", []string{"name", "row_hash"}, [][]any{{"Acme", "h1"}}, []string{"row_hash"})
	want := "INSERT INTO [dbo].[listings] ([name], [row_hash]) SELECT v.[name], v.[row_hash] " +
		"FROM (VALUES (@p1, @p2)) AS v([name], [row_hash]) " +
		"WHERE NOT EXISTS (SELECT 1 FROM [dbo].[listings] t WHERE t.[row_hash] = v.[row_hash])"
	if q != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", q, want)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	no := false
	ddl, err := buildCreateSQL(storage.TableSpec{
		Name: "dbo.listings",
		Columns: []storage.ColumnSpec{
			{Name: "is_ad", Type: storage.ColumnBool},
			{Name: "row_hash", Type: storage.ColumnHash, Nullable: &no},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "UNIQUE", Columns: []string{"row_hash"}}},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, want := range []string{
		"IF OBJECT_ID(N'dbo.listings', N'U') IS NULL",
		"CREATE TABLE [dbo].[listings]",
		"[is_ad] BIT NULL",
		"[row_hash] VARCHAR(64) NOT NULL",
		"UNIQUE ([row_hash])",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
}

func TestRepo_InsertRowsChunksUnderParamLimit(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	repo := &Repo{db: db}

	columns := []string{"a", "b", "c", "d"}
	rows := make([][]any, 1200)
	for i := range rows {
		rows[i] = []any{i, "x", "y", "z"}
	}

	n, err := repo.InsertRows(context.Background(), "t", columns, rows, []string{"a"})
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != int64(len(rows)*len(columns)) {
		t.Fatalf("unexpected total %d", n)
	}
	if len(db.queries) != 3 {
		t.Fatalf("expected 3 statements (500 rows each), got %d", len(db.queries))
	}
	for i, a := range db.args {
		if len(a) > 2100 {
			t.Fatalf("statement %d binds %d params", i, len(a))
		}
	}
	if !strings.Contains(db.queries[0], "WHERE NOT EXISTS") {
		t.Fatalf("dedupe insert expected: %s", db.queries[0])
	}

	db.queries = nil
	if _, err := repo.InsertRows(context.Background(), "t", columns, rows[:2], nil); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if strings.Contains(db.queries[0], "NOT EXISTS") {
		t.Fatalf("plain insert expected: %s", db.queries[0])
	}
}
