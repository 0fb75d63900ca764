// Package recordio writes extracted record sets as CSV, JSON or terminal tables.
package recordio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

// DefaultListSeparator joins list values in flat outputs.
const DefaultListSeparator = ", "

// FormatValue renders v as a flat cell. nil becomes "".
func FormatValue(v any, listSep string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, listSep)
	}
	return fmt.Sprint(v)
}

// columns returns the requested columns, or the schema order when none are given.
func columns(rs extracthtml.RecordSet, want []string) ([]string, error) {
	if len(want) == 0 {
		return rs.Names(), nil
	}
	for _, c := range want {
		if _, ok := rs.Column(c); !ok && !hasRecordField(rs, c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	return want, nil
}

// hasRecordField reports fields added after extraction, such as source_file.
func hasRecordField(rs extracthtml.RecordSet, name string) bool {
	for _, r := range rs.Records {
		if _, ok := r.Get(name); ok {
			return true
		}
	}
	return false
}
