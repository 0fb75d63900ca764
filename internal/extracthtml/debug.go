package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// DebugPrintSelector prints either outer HTML or text of matches for a selector.
// This is used by the command's "-selector" debug mode.
func DebugPrintSelector(w io.Writer, html, selector string, textOnly bool) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("selector %q: %w", selector, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(s.Text()))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			fmt.Fprintln(w, in)
			fmt.Fprintln(w)
			return
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
	return nil
}

// ExplainListings prints, for every candidate listing, whether it was
// accepted and which selector won each field. Fields that fell back to their
// default print "-". Used by the command's "-explain" mode.
func ExplainListings(w io.Writer, html string, ex *Extractor) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	listings := ex.listings(doc)
	fmt.Fprintf(w, "%d candidate listings\n", listings.Length())

	listings.Each(func(i int, l *goquery.Selection) {
		if !ex.accepts(l) {
			fmt.Fprintf(w, "listing %d: rejected\n", i)
			return
		}
		fmt.Fprintf(w, "listing %d: accepted\n", i)
		for _, f := range ex.fields {
			fmt.Fprintf(w, "  %-20s %s\n", f.rule.Name, f.winner(l))
		}
	})
	return nil
}

// winner names the candidate that would supply the field's value.
func (f *compiledField) winner(l *goquery.Selection) string {
	if f.kind == ExtractRank {
		return "(rank)"
	}
	for _, c := range f.candidates {
		matches := c.find(l)
		if matches.Length() == 0 {
			continue
		}
		if f.rule.All {
			found := false
			matches.EachWithBreak(func(_ int, m *goquery.Selection) bool {
				found = f.raw(m) != ""
				return !found
			})
			if found {
				return c.raw
			}
			continue
		}
		if f.rule.Index < matches.Length() && f.raw(matches.Eq(f.rule.Index)) != "" {
			return c.raw
		}
	}
	return "-"
}
