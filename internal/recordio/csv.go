package recordio

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

// CSVOptions controls WriteCSV.
type CSVOptions struct {
	// Columns selects and orders output columns. Empty means schema order.
	Columns []string
	// ListSeparator joins list values. Empty means DefaultListSeparator.
	ListSeparator string
	NoHeader      bool
}

// WriteCSV writes rs as CSV with a header row.
func WriteCSV(w io.Writer, rs extracthtml.RecordSet, opts CSVOptions) error {
	cols, err := columns(rs, opts.Columns)
	if err != nil {
		return err
	}
	sep := opts.ListSeparator
	if sep == "" {
		sep = DefaultListSeparator
	}

	cw := csv.NewWriter(w)
	if !opts.NoHeader {
		if err := cw.Write(cols); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	row := make([]string, len(cols))
	for i, rec := range rs.Records {
		for j, c := range cols {
			v, _ := rec.Get(c)
			row[j] = FormatValue(v, sep)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
