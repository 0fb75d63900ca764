// Package builtin contains simple, reusable transforms over extracted records.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
)

// Hash computes a deterministic SHA-256 hash from selected fields and writes
// it into a target field on each record.
//
// It gives every stored listing a stable, always-non-null dedupe key, so a
// re-run over the same page does not insert duplicates even when natural-key
// columns are NULL (Postgres treats NULLs as distinct for UNIQUE constraints).
//
// Canonicalization rules:
//   - Fields are concatenated in the given order using Separator.
//   - Missing or nil values are encoded as a single NUL byte (0x00) so missing
//     differs from empty-string.
//   - List values are joined with ASCII Record Separator (0x1e).
//   - Output is a lowercase hex string (length 64).
type Hash struct {
	// Fields is the ordered list of input fields used to compute the hash.
	Fields []string

	// TargetField is where the computed hash is stored.
	TargetField string

	// IncludeFieldNames includes "field=value" in the canonical form.
	IncludeFieldNames bool

	// Separator used between field components. Defaults to ASCII Unit
	// Separator (0x1f).
	Separator string

	// Overwrite controls whether an existing non-nil TargetField is replaced.
	Overwrite bool

	// TrimSpace trims leading/trailing whitespace of string values before hashing.
	TrimSpace bool
}

// Apply computes hashes and sets TargetField on each record in place.
func (h Hash) Apply(in []extracthtml.Record) []extracthtml.Record {
	if len(in) == 0 || h.TargetField == "" || len(h.Fields) == 0 {
		return in
	}

	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}

	for i := range in {
		r := &in[i]
		if !h.Overwrite {
			if v, exists := r.Get(h.TargetField); exists && v != nil {
				continue
			}
		}
		sum := hashRecord(*r, h.Fields, sep, h.IncludeFieldNames, h.TrimSpace)
		r.Set(h.TargetField, hex.EncodeToString(sum[:]))
	}
	return in
}

func hashRecord(r extracthtml.Record, fields []string, sep string, includeNames bool, trimSpace bool) [sha256.Size]byte {
	var b strings.Builder
	b.Grow(len(fields) * 20)

	for i, f := range fields {
		if i > 0 {
			b.WriteString(sep)
		}
		if includeNames {
			b.WriteString(f)
			b.WriteByte('=')
		}

		v, ok := r.Get(f)
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, v, trimSpace)
	}

	return sha256.Sum256([]byte(b.String()))
}

// appendCanonicalValue appends a stable representation of v.
func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case string:
		if trimSpace && HasEdgeSpace(t) {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)

	case []string:
		for i, s := range t {
			if i > 0 {
				b.WriteByte('\x1e')
			}
			appendCanonicalValue(b, s, trimSpace)
		}

	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	default:
		b.WriteString(fmt.Sprint(t))
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// callers skip strings.TrimSpace for the common already-clean case.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
