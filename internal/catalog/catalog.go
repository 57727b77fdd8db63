// Package catalog searches a company's product catalogue.
//
// Search is staged: exact substring containment wins outright, then
// Double Metaphone phonetic overlap combined with Jaro-Winkler similarity
// ranks the rest. The phonetic stage is what lets a voice-note mangling of
// "Inca Kola" still find the product.
package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/tinredperu/jack/internal/tinred"
)

const (
	defaultThreshold = 0.70

	// maxResults caps what Search returns; WhatsApp lists longer than this
	// are unusable anyway.
	maxResults = 10
)

// searchNoise is stripped from queries before matching: search verbs,
// articles and price phrasing contribute nothing to product identity.
var searchNoiseRe = regexp.MustCompile(`(?i)\b(busca[r]?|b[uú]scame|tienes|tienen|hay|vendes?|precio\s+de|cu[aá]nto\s+(?:cuesta|vale|est[aá])|quiero|necesito|dame|el|la|los|las|un|una|unos|unas|de|del|por\s+favor)\b`)

// Searcher ranks products against free-text queries. It is read-only after
// construction and safe for concurrent use.
type Searcher struct {
	threshold float64
}

// Option configures a [Searcher].
type Option func(*Searcher)

// WithThreshold sets the minimum similarity score for fuzzy matches
// (default 0.70).
func WithThreshold(t float64) Option {
	return func(s *Searcher) { s.threshold = t }
}

// NewSearcher returns a [Searcher] with the supplied options applied.
func NewSearcher(opts ...Option) *Searcher {
	s := &Searcher{threshold: defaultThreshold}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Term reduces a search message to the product term: search verbs, articles
// and punctuation are dropped.
func Term(text string) string {
	t := searchNoiseRe.ReplaceAllString(text, " ")
	t = strings.Map(func(r rune) rune {
		switch r {
		case '?', '¿', '!', '¡', '.', ',':
			return -1
		}
		return r
	}, t)
	return strings.Join(strings.Fields(t), " ")
}

// Search returns products matching query, best first, capped at 10.
// An empty query matches nothing.
func (s *Searcher) Search(products []tinred.Product, query string) []tinred.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	qTokens := strings.Fields(query)
	qCodes := metaphoneCodes(qTokens)

	type scored struct {
		product tinred.Product
		score   float64
	}
	var results []scored

	for _, p := range products {
		name := strings.ToLower(p.Name)
		if name == "" {
			continue
		}

		// Stage 1: containment. The whole query inside the name, or every
		// query token inside the name, is a direct hit.
		if strings.Contains(name, query) || allTokensContained(qTokens, name) {
			results = append(results, scored{p, 1.0})
			continue
		}

		// Stage 2: phonetic + similarity ranking.
		nTokens := strings.Fields(name)
		score := bestSimilarity(qTokens, nTokens, query, name)
		if codesOverlap(qCodes, metaphoneCodes(nTokens)) {
			// Phonetic agreement relaxes the bar the same way the fuzzy
			// threshold pair in transcript matching does.
			if score >= s.threshold {
				results = append(results, scored{p, score})
			}
		} else if score >= s.threshold+0.15 {
			results = append(results, scored{p, score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	out := make([]tinred.Product, len(results))
	for i, r := range results {
		out[i] = r.product
	}
	return out
}

// Best returns the single best match for query, if any.
func (s *Searcher) Best(products []tinred.Product, query string) (tinred.Product, bool) {
	matches := s.Search(products, query)
	if len(matches) == 0 {
		return tinred.Product{}, false
	}
	return matches[0], true
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func allTokensContained(tokens []string, name string) bool {
	for _, t := range tokens {
		if !strings.Contains(name, t) {
			return false
		}
	}
	return len(tokens) > 0
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity takes the highest Jaro-Winkler score across full strings,
// concatenated strings and pairwise tokens.
func bestSimilarity(qTokens, nTokens []string, query, name string) float64 {
	score := matchr.JaroWinkler(query, name, false)

	if len(qTokens) > 1 || len(nTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(nTokens, ""), false); s > score {
			score = s
		}
	}
	for _, qt := range qTokens {
		for _, nt := range nTokens {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}
