package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const listingsRules = `
name: listings
listing_selector: div.result
accept:
  any_of: [h2]
fields:
  - name: name
    selectors: [h2 a, h2]
    default: "Business {index}"
  - name: phone
    selectors: [.phones .primary, .phone]
    clean: phone
  - name: reviews
    selectors: [span.count]
    match: '(\d+)'
    type: int
  - name: rank
    extract: rank
`

const listingsPage = `<html><body>
<div class="result"><h2><a href="/a">Acme</a></h2><div class="phone">(555) 123-4567 ext 9</div><span class="count">(12)</span></div>
<div class="result"><p>Sponsored</p></div>
<div class="result"><h2>Beta</h2></div>
</body></html>`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func runCmd(t *testing.T, stdin string, client *http.Client, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	var out, errOut bytes.Buffer
	code = run(context.Background(), append([]string{"-log-level", "warn"}, args...), strings.NewReader(stdin), &out, &errOut, client)
	return code, out.String(), errOut.String()
}

// TestRun_StdinRules verifies the "stdin + rule file" happy path.
//
// We test via run() (not main()) so the test is fast, deterministic,
// and does not require an OS-level subprocess.
func TestRun_StdinRules(t *testing.T) {
	t.Parallel()

	rules := writeFile(t, t.TempDir(), "rules.yaml", listingsRules)

	code, stdout, stderr := runCmd(t, listingsPage, nil, "-rules", rules)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}

	var got []map[string]any
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, stdout)
	}
	want := []map[string]any{
		{"name": "Acme", "phone": "(555) 123-4567", "reviews": 12.0, "rank": 1.0},
		{"name": "Beta", "phone": nil, "reviews": nil, "rank": 2.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(stderr, "saved 2 records (candidates=3 rejected=1 skipped=0)") {
		t.Fatalf("missing run summary line: %s", stderr)
	}
	// Fields keep rule order in the JSON output.
	if !strings.HasPrefix(stdout, `[{"name":"Acme","phone"`) {
		t.Fatalf("unexpected field order: %s", stdout)
	}
}

// TestRun_PresetCSVColumns verifies -preset with CSV output and column selection.
func TestRun_PresetCSVColumns(t *testing.T) {
	t.Parallel()

	page := `<table>
<tr class="team"><td class="name">Boston Bruins</td><td class="year">1990</td><td class="wins">44</td></tr>
<tr class="team"><td class="name">Buffalo Sabres</td><td class="year">1990</td><td class="wins">31</td></tr>
</table>`

	code, stdout, stderr := runCmd(t, page, nil, "-preset", "hockey", "-format", "csv", "-columns", "team, wins")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}
	want := "team,wins\nBoston Bruins,44\nBuffalo Sabres,31\n"
	if stdout != want {
		t.Fatalf("unexpected csv:\nwant=%q\ngot=%q", want, stdout)
	}
}

// TestRun_URLResolvesLinks fetches the page over HTTP; -url doubles as the base.
//
// We use httptest so the test does not hit real network.
func TestRun_URLResolvesLinks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Docs</title></head><body><a href="/cat">Category</a></body></html>`))
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Timeout: 2 * time.Second}
	code, stdout, stderr := runCmd(t, "", client, "-preset", "page-basics", "-url", srv.URL+"/docs/", "-format", "jsonl")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("stdout is not a json line: %v; out=%s", err, stdout)
	}
	if got["title"] != "Docs" || got["first_link"] != srv.URL+"/cat" {
		t.Fatalf("unexpected record: %v", got)
	}
}

// TestRun_URLNon2xx verifies HTTP failures are runtime errors.
func TestRun_URLNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	code, _, stderr := runCmd(t, "", srv.Client(), "-preset", "page-basics", "-url", srv.URL)
	if code != 1 || !strings.Contains(stderr, "410") {
		t.Fatalf("expected exit 1 with status in stderr, got %d: %s", code, stderr)
	}
}

// TestRun_DebugSelectorText verifies debug selector mode prints text (not JSON).
//
// This ensures we don't regress the debugging workflow, which is often
// used interactively when authoring rules.
func TestRun_DebugSelectorText(t *testing.T) {
	t.Parallel()

	code, stdout, stderr := runCmd(t, `<div id="x">  A  </div><div id="x">B</div>`, nil, "-selector", "div#x", "-text")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}

	// We expect two blocks with trimmed text, each separated by a blank line.
	if stdout != "A\n\nB\n\n" {
		t.Fatalf("unexpected debug output: %q", stdout)
	}
}

// TestRun_Explain prints acceptance and the winning selector per field.
func TestRun_Explain(t *testing.T) {
	t.Parallel()

	rules := writeFile(t, t.TempDir(), "rules.yaml", listingsRules)

	code, stdout, stderr := runCmd(t, listingsPage, nil, "-rules", rules, "-explain")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}
	for _, want := range []string{
		"3 candidate listings",
		"listing 0: accepted",
		"listing 1: rejected",
		"phone                .phone",
		"phone                -",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("explain output missing %q:\n%s", want, stdout)
		}
	}
}

// TestRun_ListPresets prints one preset name per line.
func TestRun_ListPresets(t *testing.T) {
	t.Parallel()

	code, stdout, _ := runCmd(t, "", nil, "-list-presets")
	if code != 0 {
		t.Fatalf("run returned %d", code)
	}
	if stdout != "business\nhockey\npage-basics\nproduct\n" {
		t.Fatalf("unexpected presets: %q", stdout)
	}
}

// TestRun_UsageErrors verifies configuration problems exit with 2.
func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", listingsRules)
	empty := writeFile(t, dir, "empty.yaml", "name: x\nfields: []\n")

	tests := map[string][]string{
		"no rules":        {},
		"both":            {"-rules", rules, "-preset", "business"},
		"unknown preset":  {"-preset", "nope"},
		"no fields":       {"-rules", empty},
		"bad format":      {"-rules", rules, "-format", "xml"},
		"bad flag":        {"-nope"},
		"bad log level":   {"-log-level", "loud"},
		"missing env":     {"-env", filepath.Join(dir, "missing.env"), "-rules", rules},
		"dir and url":     {"-rules", rules, "-dir", dir, "-url", "http://127.0.0.1:1/"},
		"dir and select":  {"-dir", dir, "-selector", "div"},
		"dir and explain": {"-rules", rules, "-dir", dir, "-explain"},
	}
	for name, args := range tests {
		code, _, stderr := runCmd(t, listingsPage, nil, args...)
		if code != 2 {
			t.Fatalf("%s: expected exit 2, got %d; stderr=%s", name, code, stderr)
		}
	}
}

// TestRun_FatalOnListingError turns a required-field miss into a failed run.
func TestRun_FatalOnListingError(t *testing.T) {
	t.Parallel()

	rules := writeFile(t, t.TempDir(), "rules.yaml", `
listing_selector: div.result
fields:
  - name: name
    selectors: [h2]
    required: true
`)

	code, stdout, stderr := runCmd(t, listingsPage, nil, "-rules", rules)
	if code != 0 {
		t.Fatalf("lenient run returned %d; stderr=%s", code, stderr)
	}
	if !strings.Contains(stderr, "skipped=1") {
		t.Fatalf("expected the sponsored listing to be skipped: %s", stderr)
	}
	if !strings.Contains(stdout, "Acme") {
		t.Fatalf("expected records on stdout: %s", stdout)
	}

	code, _, stderr = runCmd(t, listingsPage, nil, "-rules", rules, "-fatal-on-listing-error")
	if code != 1 || !strings.Contains(stderr, "listing 1") {
		t.Fatalf("expected exit 1 naming listing 1, got %d: %s", code, stderr)
	}
}

// TestRun_DirOutFile extracts a directory into a file.
func TestRun_DirOutFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pages := filepath.Join(dir, "pages")
	if err := os.Mkdir(pages, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, pages, "a.html", listingsPage)
	writeFile(t, pages, "b.html", `<div class="result"><h2>Gamma</h2></div>`)
	rules := writeFile(t, dir, "rules.yaml", listingsRules)
	out := filepath.Join(dir, "out.csv")

	code, stdout, stderr := runCmd(t, "", nil, "-rules", rules, "-dir", pages, "-format", "csv", "-columns", "name,source_file", "-out", out)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}
	if stdout != "" {
		t.Fatalf("stdout should be empty with -out: %q", stdout)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	want := "name,source_file\nAcme,a.html\nBeta,a.html\nGamma,b.html\n"
	if string(b) != want {
		t.Fatalf("unexpected file:\nwant=%q\ngot=%q", want, string(b))
	}
}

// TestRun_StoreSQLite stores records and dedupes a second run.
func TestRun_StoreSQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", listingsRules)
	dsn := filepath.Join(dir, "listings.db")

	args := []string{"-rules", rules, "-store", "sqlite", "-dsn", dsn, "-format", "jsonl"}
	code, _, stderr := runCmd(t, listingsPage, nil, args...)
	if code != 0 || !strings.Contains(stderr, "stored 2 new rows in listings (0 duplicates)") {
		t.Fatalf("first store: code=%d stderr=%s", code, stderr)
	}

	code, _, stderr = runCmd(t, listingsPage, nil, args...)
	if code != 0 || !strings.Contains(stderr, "stored 0 new rows in listings (2 duplicates)") {
		t.Fatalf("second store: code=%d stderr=%s", code, stderr)
	}

	code, _, stderr = runCmd(t, listingsPage, nil, "-rules", rules, "-store", "sqlite")
	if code != 1 || !strings.Contains(stderr, "needs -dsn") {
		t.Fatalf("expected missing dsn error, got %d: %s", code, stderr)
	}
}

// TestRun_PreviewAndSummary writes tables to stderr only.
func TestRun_PreviewAndSummary(t *testing.T) {
	t.Parallel()

	rules := writeFile(t, t.TempDir(), "rules.yaml", listingsRules)

	code, stdout, stderr := runCmd(t, listingsPage, nil, "-rules", rules, "-preview", "1", "-summary", "-format", "jsonl")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr)
	}
	if strings.Count(stdout, "\n") != 2 {
		t.Fatalf("expected two json lines on stdout: %q", stdout)
	}
	lower := strings.ToLower(stderr)
	for _, want := range []string{"acme", "... 1 more", "candidates", "50%"} {
		if !strings.Contains(lower, want) {
			t.Fatalf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

// TestRun_BadFormatCreatesNoOutput verifies -format is checked before the
// page is fetched or the -out file is created.
func TestRun_BadFormatCreatesNoOutput(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(listingsPage))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", listingsRules)
	out := filepath.Join(dir, "out.xml")

	code, _, stderr := runCmd(t, "", srv.Client(), "-rules", rules, "-url", srv.URL, "-format", "xml", "-out", out)
	if code != 2 || !strings.Contains(stderr, `unknown -format "xml"`) {
		t.Fatalf("expected exit 2 for bad format, got %d: %s", code, stderr)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("page fetched %d times before format check", n)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("out file should not exist, stat err=%v", err)
	}
}
