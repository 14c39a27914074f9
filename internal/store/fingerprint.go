package store

import (
	"sort"
	"strings"
)

// Cache key prefixes for remote responses
const (
	// PrefixSearch is the prefix for search result caches (search:{query})
	PrefixSearch = "search:"

	// PrefixChapters is the prefix for chapter listing caches (chapters:{source}:{titleID})
	PrefixChapters = "chapters:"

	// PrefixPages is the prefix for page listing caches (pages:{source}:{chapterID})
	PrefixPages = "pages:"

	// PrefixSimilar is the prefix for similar-title recommendation caches
	PrefixSimilar = "similar:"
)

// Fingerprint builds a deterministic cache key from a logical request:
// the endpoint prefix plus its parameters in sorted order.
func Fingerprint(prefix string, params map[string]string) string {
	if len(params) == 0 {
		return prefix
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(prefix)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(params[k]))
	}
	return b.String()
}
