package pipeline

import (
	"net/url"
	"strings"
)

// UniqueURLs flattens per-query result lists in order, drops non-HTTP and
// repeated URLs (ignoring fragments) and keeps at most limit entries when
// limit > 0.
func UniqueURLs(lists [][]string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, raw := range list {
			u, ok := normalizeURL(raw)
			if !ok {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

func normalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}
