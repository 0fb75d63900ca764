package recordio

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

const previewCellWidth = 40

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderPreview prints the first limit records as a table. limit <= 0 prints all.
func RenderPreview(w io.Writer, rs extracthtml.RecordSet, cols []string, limit int) error {
	cols, err := columns(rs, cols)
	if err != nil {
		return err
	}

	t := newTable(w)
	header := table.Row{"#"}
	for _, c := range cols {
		header = append(header, c)
	}
	t.AppendHeader(header)

	n := len(rs.Records)
	if limit > 0 && limit < n {
		n = limit
	}
	for i := 0; i < n; i++ {
		row := table.Row{i + 1}
		for _, c := range cols {
			v, _ := rs.Records[i].Get(c)
			row = append(row, text.Trim(FormatValue(v, DefaultListSeparator), previewCellWidth))
		}
		t.AppendRow(row)
	}
	if n < len(rs.Records) {
		t.AppendFooter(table.Row{"", fmt.Sprintf("... %d more", len(rs.Records)-n)})
	}
	t.Render()
	return nil
}

// Summary describes one extraction run.
type Summary struct {
	Candidates int
	Accepted   int
	Rejected   int
	Skipped    int
	// Filled counts records with a non-empty value, per column.
	Filled map[string]int
	// True counts true values of bool columns.
	True map[string]int
	// Mean averages the non-nil values of int and float columns.
	Mean  map[string]float64
	Order []string
}

// Summarize counts outcomes and per-column fill.
func Summarize(rs extracthtml.RecordSet) Summary {
	s := Summary{
		Candidates: rs.Candidates,
		Accepted:   len(rs.Records),
		Rejected:   rs.Rejected,
		Skipped:    rs.SkippedCount(),
		Filled:     make(map[string]int, len(rs.Schema)),
		True:       make(map[string]int),
		Mean:       make(map[string]float64),
		Order:      rs.Names(),
	}
	for _, c := range rs.Schema {
		if c.Type == extracthtml.TypeBool {
			s.True[c.Name] = 0
		}
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range rs.Records {
		for _, c := range s.Order {
			v, _ := r.Get(c)
			if strings.TrimSpace(FormatValue(v, "")) != "" {
				s.Filled[c]++
			}
			switch t := v.(type) {
			case bool:
				if t {
					s.True[c]++
				}
			case int:
				sums[c] += float64(t)
				counts[c]++
			case int64:
				sums[c] += float64(t)
				counts[c]++
			case float64:
				sums[c] += t
				counts[c]++
			}
		}
	}
	for c, n := range counts {
		s.Mean[c] = sums[c] / float64(n)
	}
	return s
}

// RenderSummary prints s as two small tables: run outcomes, then column fill rates.
func RenderSummary(w io.Writer, s Summary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"candidates", "accepted", "rejected", "skipped"})
	t.AppendRow(table.Row{s.Candidates, s.Accepted, s.Rejected, s.Skipped})
	t.Render()

	if len(s.Order) == 0 {
		return
	}
	f := newTable(w)
	f.AppendHeader(table.Row{"column", "filled", "rate", "stat"})
	for _, c := range s.Order {
		rate := "-"
		if s.Accepted > 0 {
			rate = fmt.Sprintf("%.0f%%", 100*float64(s.Filled[c])/float64(s.Accepted))
		}
		stat := ""
		if n, ok := s.True[c]; ok {
			stat = fmt.Sprintf("true=%d", n)
		} else if m, ok := s.Mean[c]; ok {
			stat = fmt.Sprintf("mean=%.2f", m)
		}
		f.AppendRow(table.Row{c, s.Filled[c], rate, stat})
	}
	f.Render()
}
