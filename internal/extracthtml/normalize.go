package extracthtml

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	rePhoneExtension = regexp.MustCompile(`(?i)\s*(?:ext\.?|extension|x|#)\s*\d+\s*$`)
	rePhoneNoise     = regexp.MustCompile(`[^\d\-\(\)\s\+]`)
)

// CleanPhoneNumber drops a trailing extension, then every character that is
// not a digit, paren, dash, space or plus.
func CleanPhoneNumber(s string) string {
	s = rePhoneExtension.ReplaceAllString(s, "")
	s = rePhoneNoise.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Normalize is the post-pass over a whole RecordSet: it trims strings and
// list elements, cleans phone columns and coerces typed columns. Values that
// cannot be coerced become the column default. Lists stay lists.
//
// Normalize is idempotent.
func Normalize(rs *RecordSet) {
	if rs == nil {
		return
	}
	for i := range rs.Records {
		rec := &rs.Records[i]
		for _, col := range rs.Schema {
			v, ok := rec.Values[col.Name]
			if !ok {
				continue
			}
			rec.Values[col.Name] = normalizeValue(col, v)
		}
	}
}

func normalizeValue(col Column, v any) any {
	switch t := v.(type) {
	case string:
		v = strings.TrimSpace(t)
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		v = out
	}

	if col.Clean == CleanPhone {
		if s, ok := v.(string); ok {
			if v = CleanPhoneNumber(s); v == "" {
				return fallback(col)
			}
		}
	}

	out, ok := coerce(col.Type, v)
	if !ok {
		return fallback(col)
	}
	return out
}

// fallback is the column default, coerced to the column type when possible.
func fallback(col Column) any {
	if col.Default == nil {
		return nil
	}
	if out, ok := coerce(col.Type, col.Default); ok {
		return out
	}
	return nil
}

// coerce converts v to typ. nil always passes through.
func coerce(typ string, v any) (any, bool) {
	if v == nil {
		return nil, true
	}

	switch typ {
	case TypeInt:
		switch t := v.(type) {
		case int:
			return t, true
		case int64:
			return int(t), true
		case float64:
			if t == math.Trunc(t) && !math.IsInf(t, 0) {
				return int(t), true
			}
		case string:
			t = strings.ReplaceAll(t, ",", "")
			if n, err := strconv.Atoi(t); err == nil {
				return n, true
			}
			if f, ok := parseDecimal(t); ok && f == math.Trunc(f) {
				return int(f), true
			}
		}
		return nil, false

	case TypeFloat:
		switch t := v.(type) {
		case float64:
			if !math.IsNaN(t) && !math.IsInf(t, 0) {
				return t, true
			}
		case int:
			return float64(t), true
		case int64:
			return float64(t), true
		case string:
			if f, ok := parseDecimal(strings.ReplaceAll(t, ",", "")); ok {
				return f, true
			}
		}
		return nil, false

	case TypeBool:
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			switch strings.ToLower(t) {
			case "true", "yes", "y", "1":
				return true, true
			case "false", "no", "n", "0":
				return false, true
			}
		}
		return nil, false

	case TypeList:
		switch t := v.(type) {
		case []string:
			return t, true
		case string:
			if t == "" {
				return []string{}, true
			}
			return []string{t}, true
		}
		return nil, false
	}

	// TypeString leaves values (including enum numbers) as they are.
	return v, true
}

// parseDecimal parses a decimal number. Infinities, NaN and hex floats fail.
func parseDecimal(s string) (float64, bool) {
	if strings.ContainsAny(s, "xXpP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
