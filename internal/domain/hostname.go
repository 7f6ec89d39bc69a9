package domain

import "strings"

// NormalizeHostname lowercases a candidate and strips wildcard prefixes,
// schemes, paths and the trailing root dot. Returns "" when nothing usable
// remains.
func NormalizeHostname(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	h = strings.TrimPrefix(h, "*.")
	h = strings.TrimSuffix(h, ".")
	if h == "" || strings.ContainsAny(h, " \t,") {
		return ""
	}
	return h
}

// Dedupe normalizes hosts and drops empties and repeats, keeping first-seen
// order.
func Dedupe(hosts []string) []string {
	seen := make(map[string]struct{}, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, raw := range hosts {
		h := NormalizeHostname(raw)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

type Categories struct {
	WWW        []string `json:"www"`
	RootLevel  []string `json:"root_level"`
	MultiLevel []string `json:"multi_level"`
}

// Categorize groups hosts by shape relative to root: www.*, one label below
// root, or deeper.
func Categorize(hosts []string, root string) Categories {
	c := Categories{WWW: []string{}, RootLevel: []string{}, MultiLevel: []string{}}
	rootLabels := len(strings.Split(root, "."))
	for _, h := range hosts {
		switch {
		case strings.HasPrefix(h, "www."):
			c.WWW = append(c.WWW, h)
		case root != "" && len(strings.Split(h, ".")) == rootLabels+1:
			c.RootLevel = append(c.RootLevel, h)
		default:
			c.MultiLevel = append(c.MultiLevel, h)
		}
	}
	return c
}
