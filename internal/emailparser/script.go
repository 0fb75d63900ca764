package emailparser

import (
	"encoding/base64"
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

var (
	reVarA      = regexp.MustCompile(`\bvar\s+a\s*=\s*'([^']*)'`)
	reClassAttr = regexp.MustCompile(`\bclass\s*=\s*"([^"]+)"`)
)

// DecodeEmailFromScript recovers an address from an inline script of the form
//
//	var a='<entity-encoded, obfuscated address>'; ... <a class="email <token>">
//
// without running any JavaScript. Each <token> is Base64 JSON carrying one
// directive: {"rmv":"s"} removes s, {"h":"m"} undoes a one-rune swap
// (real h was written as m), {"rot":"it"} applies ROT13. Removals run first,
// then swaps, then ROT13. Only class attributes mentioning "email" or
// "required" are read, so unrelated CSS tokens never apply.
func DecodeEmailFromScript(script string) string {
	m := reVarA.FindStringSubmatch(script)
	if len(m) != 2 {
		return ""
	}

	email := strings.TrimSpace(html.UnescapeString(m[1]))
	email = strings.TrimPrefix(email, "mailto:")

	// "mailto:" may only appear after ROT13; accept strips it again.
	return accept(scanDirectives(script).apply(email))
}

// directives are the de-obfuscation steps found next to the script.
type directives struct {
	rot13    bool
	removals []string
	swaps    map[rune]rune // obfuscated -> real
}

func (d directives) apply(s string) string {
	for _, rm := range d.removals {
		s = strings.ReplaceAll(s, rm, "")
	}
	if len(d.swaps) > 0 {
		s = strings.Map(func(r rune) rune {
			if orig, ok := d.swaps[r]; ok {
				return orig
			}
			return r
		}, s)
	}
	if d.rot13 {
		s = strings.Map(rot13, s)
	}
	return s
}

func scanDirectives(script string) directives {
	d := directives{swaps: map[rune]rune{}}

	for _, ca := range reClassAttr.FindAllStringSubmatch(script, -1) {
		classVal := ca[1]
		if !strings.Contains(classVal, "email") && !strings.Contains(classVal, "required") {
			continue
		}

		for _, tok := range strings.Fields(classVal) {
			// Directive tokens are short "eyJ..." strings.
			if len(tok) < 8 || len(tok) > 80 {
				continue
			}
			obj, ok := decodeToken(tok)
			if !ok {
				continue
			}
			d.add(obj)
		}
	}
	return d
}

func (d *directives) add(obj map[string]string) {
	for k, v := range obj {
		switch k {
		case "rot":
			if v == "it" {
				d.rot13 = true
			}
		case "rmv":
			if v != "" {
				d.removals = append(d.removals, v)
			}
		default:
			kr, vr := []rune(k), []rune(v)
			if len(kr) == 1 && len(vr) == 1 {
				d.swaps[vr[0]] = kr[0]
			}
		}
	}
}

// decodeToken reads token as padded-or-unpadded standard or URL-safe Base64
// holding a non-empty JSON object of strings.
func decodeToken(token string) (map[string]string, bool) {
	if n := len(token) % 4; n != 0 {
		token += strings.Repeat("=", 4-n)
	}

	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(token); err != nil {
			return nil, false
		}
	}

	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil || len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

func rot13(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a' + (r-'a'+13)%26
	case r >= 'A' && r <= 'Z':
		return 'A' + (r-'A'+13)%26
	}
	return r
}
