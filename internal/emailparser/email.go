// Package emailparser recovers e-mail addresses that listing pages hide from
// naive scrapers. Every decoder returns "" when nothing trustworthy is found.
package emailparser

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// Conservative on purpose: typical business contact addresses only.
var reEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func looksLikeEmail(s string) bool {
	return reEmail.MatchString(strings.TrimSpace(s))
}

// accept returns s trimmed when it is an e-mail address, else "".
func accept(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "mailto:"))
	if looksLikeEmail(s) {
		return s
	}
	return ""
}

// DecodeCloudflare decodes a Cloudflare-protected address: the hex payload
// of a data-cfemail attribute or an /cdn-cgi/l/email-protection#<hex> link.
// The first byte is the XOR key for the rest.
func DecodeCloudflare(encoded string) string {
	encoded = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(encoded), "#"))
	b, err := hex.DecodeString(encoded)
	if err != nil || len(b) < 2 {
		return ""
	}
	key := b[0]
	out := make([]byte, len(b)-1)
	for i, c := range b[1:] {
		out[i] = c ^ key
	}
	return accept(string(out))
}

// DecodeMailto returns the address of a mailto: href, without query string.
func DecodeMailto(href string) string {
	href = strings.TrimSpace(href)
	if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return ""
	}
	addr := href[len("mailto:"):]
	addr, _, _ = strings.Cut(addr, "?")
	if un, err := url.PathUnescape(addr); err == nil {
		addr = un
	}
	// Only the first recipient is kept.
	addr, _, _ = strings.Cut(addr, ",")
	return accept(addr)
}
