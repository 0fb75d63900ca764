package presets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

func extractFixture(t *testing.T, preset, fixture string, opts ...extracthtml.Option) extracthtml.RecordSet {
	t.Helper()

	rs, err := Lookup(preset)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", preset, err)
	}
	ex, err := extracthtml.Compile(*rs, opts...)
	if err != nil {
		t.Fatalf("Compile(%q): %v", preset, err)
	}
	b, err := os.ReadFile(filepath.Join("testdata", fixture))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	out, err := ex.ExtractHTML(string(b))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return out
}

func rows(rs extracthtml.RecordSet) []map[string]any {
	out := make([]map[string]any, 0, len(rs.Records))
	for _, r := range rs.Records {
		out = append(out, r.Values)
	}
	return out
}

// TestNames verifies every embedded preset is listed and loads.
func TestNames(t *testing.T) {
	t.Parallel()

	want := []string{"business", "hockey", "page-basics", "product"}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Fatalf("Names mismatch (-want +got):\n%s", diff)
	}
	for _, name := range want {
		rs, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if rs.Name != name {
			t.Fatalf("Lookup(%q).Name=%q", name, rs.Name)
		}
		if _, err := extracthtml.Compile(*rs); err != nil {
			t.Fatalf("Compile(%q): %v", name, err)
		}
	}
}

// TestLookup_Unknown verifies the error lists the available names.
func TestLookup_Unknown(t *testing.T) {
	t.Parallel()

	_, err := Lookup("nope")
	if err == nil || !strings.Contains(err.Error(), "business") {
		t.Fatalf("expected unknown preset error listing names, got %v", err)
	}
}

// TestBusiness covers acceptance, fallbacks, enum ratings and phone cleanup.
func TestBusiness(t *testing.T) {
	t.Parallel()

	rs := extractFixture(t, "business", "business.html")

	// The rating div matches the listing selector too and is rejected along
	// with the banner.
	if rs.Candidates != 4 || rs.Rejected != 2 || len(rs.Records) != 2 {
		t.Fatalf("candidates=%d rejected=%d records=%d", rs.Candidates, rs.Rejected, len(rs.Records))
	}

	first := rs.Records[0].Values
	want := map[string]any{
		"name":              "Acme Plumbing",
		"categories":        []string{"Plumbers", "Water Heaters"},
		"rating":            4.0,
		"review_count":      27,
		"phone":             "(555) 123-4567",
		"address":           "12 Main St",
		"website":           "https://acme.example.com",
		"is_ad":             true,
		"open_status":       "Open Now",
		"years_in_business": 15,
		"rank":              1,
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("first listing mismatch (-want +got):\n%s", diff)
	}

	beta := rs.Records[1].Values
	if beta["name"] != "Beta Drains" || beta["rank"] != 2 {
		t.Fatalf("unexpected second listing: %v", beta)
	}
	if beta["phone"] != nil || beta["rating"] != nil || beta["is_ad"] != false {
		t.Fatalf("unexpected beta values: %v", beta)
	}

	// Only five, four and three are rated; other classes leave rating empty.
	rules, err := Lookup("business")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	ex, err := extracthtml.Compile(*rules)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	two, err := ex.ExtractHTML(`<div class="result"><a class="business-name">A</a><div class="result-rating two"></div></div>`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(two.Records) != 1 {
		t.Fatalf("records=%d, want 1", len(two.Records))
	}
	if v := two.Records[0].Values["rating"]; v != nil {
		t.Fatalf("rating for class two=%v, want nil", v)
	}
}

// TestProduct covers srcset, index, list transforms and the URL-derived category.
func TestProduct(t *testing.T) {
	t.Parallel()

	rs := extractFixture(t, "product", "product.html", extracthtml.WithBaseURL("https://shop.example.com/"))

	want := []map[string]any{
		{
			"name":        "Storm Shell",
			"url":         "https://shop.example.com/product/outerwear/rain-jackets",
			"product_id":  "1001",
			"main_image":  "https://shop.example.com/img/storm-300.jpg",
			"hover_image": "https://shop.example.com/img/storm-back-300.jpg",
			"colors":      []string{"Olive", "Navy"},
			"category":    "Rain Jackets",
		},
		{
			"name":        "Unknown",
			"url":         "https://shop.example.com/about",
			"product_id":  nil,
			"main_image":  nil,
			"hover_image": nil,
			"colors":      nil,
			"category":    "Products",
		},
	}
	if diff := cmp.Diff(want, rows(rs)); diff != "" {
		t.Fatalf("product mismatch (-want +got):\n%s", diff)
	}
}

// TestHockey verifies typed table rows; the header row is not a listing.
func TestHockey(t *testing.T) {
	t.Parallel()

	rs := extractFixture(t, "hockey", "hockey.html")

	if rs.Candidates != 2 || len(rs.Records) != 2 {
		t.Fatalf("candidates=%d records=%d", rs.Candidates, len(rs.Records))
	}
	want := map[string]any{
		"team":          "Boston Bruins",
		"year":          1990,
		"wins":          44,
		"losses":        24,
		"ot_losses":     nil,
		"win_pct":       0.55,
		"goals_for":     299,
		"goals_against": 264,
		"goal_diff":     35,
	}
	if diff := cmp.Diff(want, rs.Records[0].Values); diff != "" {
		t.Fatalf("hockey mismatch (-want +got):\n%s", diff)
	}
}

// TestPageBasics treats the whole document as a single listing.
func TestPageBasics(t *testing.T) {
	t.Parallel()

	rs, err := Lookup("page-basics")
	if err != nil {
		t.Fatal(err)
	}
	ex, err := extracthtml.Compile(*rs, extracthtml.WithBaseURL("https://example.com/docs/"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := ex.ExtractHTML(`<html><head><title> Hello </title></head><body>
<p>First para.</p><p>Second.</p><a href="a.html">A</a><a href="/b">B</a></body></html>`)
	if err != nil {
		t.Fatal(err)
	}

	want := []map[string]any{{
		"title":           "Hello",
		"first_link":      "https://example.com/docs/a.html",
		"links":           []string{"https://example.com/docs/a.html", "https://example.com/b"},
		"first_paragraph": "First para.",
	}}
	if diff := cmp.Diff(want, rows(out)); diff != "" {
		t.Fatalf("page-basics mismatch (-want +got):\n%s", diff)
	}
}
