package extracthtml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestExtractDir_SingleObject verifies stable file name ordering, one record
// per file and the source_file column.
func TestExtractDir_SingleObject(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()

	// Written out of order to check sorting.
	if err := os.WriteFile(filepath.Join(tmp, "b.html"), []byte(`<h1>B</h1>`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "a.html"), []byte(`<h1>A</h1>`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(tmp, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}

	ex := mustCompile(t, RuleSet{Fields: []FieldRule{{Name: "title", Selectors: []string{"h1"}}}})
	rs, err := ExtractDir(tmp, ex)
	if err != nil {
		t.Fatalf("ExtractDir: %v", err)
	}

	if diff := cmp.Diff([]string{"title", "source_file"}, rs.Names()); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
	got := valuesOf(rs)
	want := []map[string]any{
		{"title": "A", "source_file": "a.html"},
		{"title": "B", "source_file": "b.html"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

// TestExtractDir_RecordMode verifies many records per file, and that empty
// files are skipped.
func TestExtractDir_RecordMode(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "x.html"), []byte(`
		<div class="rec"><span class="n">A</span></div>
		<div class="rec"><span class="n">B</span></div>
	`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "y.html"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ex := mustCompile(t, RuleSet{
		ListingSelector: ".rec",
		Fields:          []FieldRule{{Name: "name", Selectors: []string{".n"}}},
	})
	rs, err := ExtractDir(tmp, ex)
	if err != nil {
		t.Fatalf("ExtractDir: %v", err)
	}

	want := []map[string]any{
		{"name": "A", "source_file": "x.html"},
		{"name": "B", "source_file": "x.html"},
	}
	if diff := cmp.Diff(want, valuesOf(rs)); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if rs.Candidates != 2 {
		t.Fatalf("candidates=%d, want 2", rs.Candidates)
	}
}

// TestExtractDir_MissingDir verifies a missing directory is an error.
func TestExtractDir_MissingDir(t *testing.T) {
	t.Parallel()

	ex := mustCompile(t, RuleSet{Fields: []FieldRule{{Name: "title", Selectors: []string{"h1"}}}})
	if _, err := ExtractDir(filepath.Join(t.TempDir(), "nope"), ex); err == nil {
		t.Fatalf("err=nil, want read dir error")
	}
}
