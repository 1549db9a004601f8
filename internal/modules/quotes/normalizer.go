// Package quotes resolves free-form user identifiers (ticker, ISIN,
// company name) to canonical symbols and current prices across the
// configured quote providers.
package quotes

import (
	"sort"
	"strings"
)

// Normalizer maps raw identifiers to canonical exchange-qualified
// symbols using the static override tables. It is pure and total: when
// nothing matches, the input comes back unchanged.
type Normalizer struct {
	overrides []override // sorted keys for deterministic matching
	byKey     map[string]string
	fragments []override // longest fragment first
}

type override struct {
	key    string
	symbol string
}

// NewNormalizer builds a normalizer from the override and fragment
// tables. Override keys match case-insensitively; fragment keys are
// lowercase substrings of product names.
func NewNormalizer(overrides, fragments map[string]string) *Normalizer {
	n := &Normalizer{byKey: make(map[string]string, len(overrides))}

	for k, v := range overrides {
		n.byKey[strings.ToUpper(k)] = v
	}

	for k, v := range fragments {
		n.fragments = append(n.fragments, override{key: strings.ToLower(k), symbol: v})
	}
	// Longest fragment wins; ties broken lexicographically so matching
	// stays deterministic regardless of map order.
	sort.Slice(n.fragments, func(i, j int) bool {
		if len(n.fragments[i].key) != len(n.fragments[j].key) {
			return len(n.fragments[i].key) > len(n.fragments[j].key)
		}
		return n.fragments[i].key < n.fragments[j].key
	})

	return n
}

// Normalize maps a raw identifier to a canonical symbol. Steps: exact
// override match, per-token override match, product-name fragment
// substring match, otherwise the trimmed input unchanged.
func (n *Normalizer) Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}

	upper := strings.ToUpper(trimmed)
	if symbol, ok := n.byKey[upper]; ok {
		return symbol
	}

	for _, token := range tokenize(upper) {
		if symbol, ok := n.byKey[token]; ok {
			return symbol
		}
	}

	lower := strings.ToLower(trimmed)
	for _, frag := range n.fragments {
		if strings.Contains(lower, frag.key) {
			return frag.symbol
		}
	}

	return trimmed
}

// tokenize splits on any run of non-alphanumeric separators.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		}
		return true
	})
}
