package odata

import (
	"net/http"
	"strings"
)

// joinCookies turns Set-Cookie values into a Cookie header: attributes are
// dropped, duplicates skipped, order kept.
func joinCookies(setCookies []string) string {
	seen := make(map[string]struct{}, len(setCookies))
	pairs := make([]string, 0, len(setCookies))
	for _, sc := range setCookies {
		pair, _, _ := strings.Cut(sc, ";")
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	return strings.Join(pairs, "; ")
}

// headerValue looks a header up ignoring letter case. Header.Get already
// canonicalizes, the scan covers maps populated without canonical keys.
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// headerValues is headerValue for multi-valued headers such as Set-Cookie.
func headerValues(h http.Header, name string) []string {
	if vs := h.Values(name); len(vs) > 0 {
		return vs
	}
	var out []string
	for k, vs := range h {
		if strings.EqualFold(k, name) {
			out = append(out, vs...)
		}
	}
	return out
}
