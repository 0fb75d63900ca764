package storage

import (
	"fmt"
	"strings"
)

// NormalizeKey converts a key value to a canonical string form, suitable for
// in-memory dedupe keys (e.g. "Acme" or "8429529").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps dedupe consistent across drivers that return []byte for text.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DedupeRows keeps the first row for each distinct key over dedupeColumns,
// preserving input order. It errors when a dedupe column is not in columns.
func DedupeRows(rows [][]any, columns, dedupeColumns []string) ([][]any, error) {
	if len(dedupeColumns) == 0 {
		return rows, nil
	}

	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	idx := make([]int, len(dedupeColumns))
	for i, c := range dedupeColumns {
		p, ok := pos[c]
		if !ok {
			return nil, fmt.Errorf("dedupe column %q not present in columns", c)
		}
		idx[i] = p
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	parts := make([]string, len(idx))
	for _, row := range rows {
		for i, p := range idx {
			parts[i] = NormalizeKey(row[p])
		}
		k := strings.Join(parts, "\x00")
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

// ChunkRows splits rows so that no chunk binds more than maxParams values.
func ChunkRows(rows [][]any, columns, maxParams int) [][][]any {
	per := maxParams / max(1, columns)
	if per < 1 {
		per = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
