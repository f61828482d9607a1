// Package search filters and ranks clinic records against free-text queries.
//
// Matching is case and accent insensitive: "gomez" finds "Gómez" and
// "PEDIATRIA" finds "Pediatría". A record matches when the folded query is
// contained in any of its searchable fields. Matches are ordered by Jaccard
// similarity between the query tokens and the record tokens; ties keep the
// input order, so callers can pre-sort (e.g. by last name).
//
// The package holds no state and is safe for concurrent use.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultStopwords are Spanish connectors ignored when ranking.
var DefaultStopwords = []string{"de", "del", "la", "las", "los", "el", "y"}

// Option configures Filter.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	limit     int
}

func defaultConfig() config {
	c := config{}
	WithStopwords(DefaultStopwords)(&c)
	return c
}

// WithStopwords replaces the words ignored when ranking. Nil disables
// stop-word removal.
func WithStopwords(words []string) Option {
	return func(c *config) {
		if words == nil {
			c.stopwords = nil
			return
		}
		c.stopwords = make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = Fold(w); w != "" {
				c.stopwords[w] = struct{}{}
			}
		}
	}
}

// WithLimit caps the number of results. n <= 0 means no cap.
func WithLimit(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	// Transformers carry state; build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return normalizeWhitespace(cases.Fold().String(out))
}

// Filter returns the items whose fields contain query, best match first.
// An empty or blank query matches nothing.
func Filter[T any](items []T, query string, fields func(T) []string, opts ...Option) []T {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	q := Fold(query)
	if q == "" {
		return []T{}
	}
	qTokens := tokenize(q, cfg.stopwords)

	type scored struct {
		item  T
		score float64
	}
	buf := make([]scored, 0, len(items))
	for _, it := range items {
		fs := fields(it)
		if !containsAny(fs, q) {
			continue
		}
		text := Fold(strings.Join(fs, " "))
		buf = append(buf, scored{item: it, score: jaccard(qTokens, tokenize(text, cfg.stopwords))})
	}

	sort.SliceStable(buf, func(a, b int) bool { return buf[a].score > buf[b].score })

	n := len(buf)
	if cfg.limit > 0 && cfg.limit < n {
		n = cfg.limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = buf[i].item
	}
	return out
}

// containsAny reports whether the folded query occurs within a single field.
func containsAny(fields []string, q string) bool {
	for _, f := range fields {
		if strings.Contains(Fold(f), q) {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// jaccard returns |a ∩ b| / |a ∪ b|, or 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	over := 0
	for k := range small {
		if _, ok := large[k]; ok {
			over++
		}
	}
	return float64(over) / float64(len(a)+len(b)-over)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
