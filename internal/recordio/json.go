package recordio

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

// WriteJSON writes rs.Records as one JSON array, fields in schema order.
func WriteJSON(w io.Writer, rs extracthtml.RecordSet, indent bool) error {
	records := rs.Records
	if records == nil {
		records = []extracthtml.Record{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteJSONLines writes one JSON object per line.
func WriteJSONLines(w io.Writer, rs extracthtml.RecordSet) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, r := range rs.Records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}
