package extracthtml

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var reDigitGroups = regexp.MustCompile(`\d+`)

// errNoEnumMatch is the enum miss; callers treat it like an absent element.
var errNoEnumMatch = errors.New("no enum entry matched")

// step is one string transform. An empty result means "no value".
type step func(string) (string, error)

// buildSteps assembles the transform chain for r in fixed order:
// srcset, match, digits, replace, title, resolve.
func buildSteps(r FieldRule, re *regexp.Regexp, base *url.URL) []step {
	var steps []step
	if r.Srcset {
		steps = append(steps, func(s string) (string, error) { return FirstSrcsetURL(s), nil })
	}
	if re != nil {
		steps = append(steps, func(s string) (string, error) { return applyRegexFilter(s, re), nil })
	}
	if r.Digits {
		steps = append(steps, joinDigits)
	}
	if len(r.Replace) > 0 {
		pairs := make([]string, 0, 2*len(r.Replace))
		for _, rp := range r.Replace {
			pairs = append(pairs, rp.Old, rp.New)
		}
		steps = append(steps, func(s string) (string, error) {
			// Replacements apply one after another, not simultaneously.
			for i := 0; i < len(pairs); i += 2 {
				s = strings.ReplaceAll(s, pairs[i], pairs[i+1])
			}
			return s, nil
		})
	}
	if r.Title {
		steps = append(steps, func(s string) (string, error) { return TitleCase(s), nil })
	}
	if r.Resolve {
		steps = append(steps, func(s string) (string, error) { return resolveURL(base, s) })
	}
	return steps
}

func runSteps(steps []step, v string) (string, error) {
	for _, st := range steps {
		if v == "" {
			return "", nil
		}
		out, err := st(v)
		if err != nil {
			return "", err
		}
		v = out
	}
	return v, nil
}

// compileOptionalRegex compiles pattern, returning nil for an empty pattern.
func compileOptionalRegex(pattern, field string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex for field %q: %w", field, err)
	}
	return re, nil
}

// applyRegexFilter returns group 1 when re has groups, the full match
// otherwise, and "" when re does not match.
func applyRegexFilter(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}

	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}

func joinDigits(s string) (string, error) {
	n, ok, err := ParseCountAny(s)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return strconv.Itoa(n), nil
}

// ParseCountAny extracts an integer count from v.
//
// It accepts inputs like "(1 096 ...)" by joining digit groups into "1096".
// It returns ok=false when v contains no digits.
func ParseCountAny(v any) (count int, ok bool, err error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}

	parts := reDigitGroups.FindAllString(s, -1)
	if len(parts) == 0 {
		return 0, false, nil
	}

	n, convErr := strconv.Atoi(strings.Join(parts, ""))
	if convErr != nil {
		return 0, false, convErr
	}
	return n, true, nil
}

// FirstSrcsetURL returns the URL of the first srcset candidate
// ("a.jpg 1x, b.jpg 2x" → "a.jpg").
func FirstSrcsetURL(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// TitleCase upper-cases the first letter of every word and lower-cases the rest.
func TitleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

// resolveURL resolves href against base. A nil base only validates href.
func resolveURL(base *url.URL, href string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if base == nil {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}

// lookupEnum returns the value of the first entry whose key is in tokens.
func lookupEnum(entries []EnumEntry, tokens []string) (any, error) {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := set[strings.ToLower(e.Key)]; ok {
			return e.Value, nil
		}
	}
	return nil, errNoEnumMatch
}
