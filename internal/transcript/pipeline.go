package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultHintThreshold = 0.85

// Pipeline cleans one transcript in two stages:
//
//  1. Numeric normalisation — always applied; spoken numbers become digits.
//  2. Vocabulary hinting — optional; words are snapped to the company's
//     product vocabulary when they are near-identical (Jaro-Winkler), fixing
//     whisper spellings like "inka" for a catalogue that says "inca".
//
// Pipeline is read-only after construction and safe for concurrent use.
type Pipeline struct {
	vocabulary    []string
	hintThreshold float64
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithVocabulary supplies the product-name words used by the hinting stage.
// Without a vocabulary the stage is skipped entirely.
func WithVocabulary(names []string) Option {
	return func(p *Pipeline) {
		seen := make(map[string]bool)
		for _, name := range names {
			for _, w := range strings.Fields(strings.ToLower(name)) {
				if len(w) >= 4 && !seen[w] {
					seen[w] = true
					p.vocabulary = append(p.vocabulary, w)
				}
			}
		}
	}
}

// WithHintThreshold sets the minimum Jaro-Winkler similarity for a vocabulary
// snap (default 0.85). High on purpose; a wrong correction is worse than none.
func WithHintThreshold(t float64) Option {
	return func(p *Pipeline) { p.hintThreshold = t }
}

// NewPipeline returns a [Pipeline] with the supplied options applied.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{hintThreshold: defaultHintThreshold}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs both stages over text and returns the cleaned result.
func (p *Pipeline) Process(text string) string {
	text = NormalizeNumbers(text)
	if len(p.vocabulary) > 0 {
		text = p.hintWords(text)
	}
	return strings.TrimSpace(text)
}

// hintWords replaces words that almost match a vocabulary word. Exact matches
// and short words are left alone.
func (p *Pipeline) hintWords(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		lower := strings.ToLower(w)
		if len(lower) < 4 || p.known(lower) {
			continue
		}
		if best, ok := p.closest(lower); ok {
			words[i] = best
		}
	}
	return strings.Join(words, " ")
}

func (p *Pipeline) known(word string) bool {
	for _, v := range p.vocabulary {
		if v == word {
			return true
		}
	}
	return false
}

func (p *Pipeline) closest(word string) (string, bool) {
	var best string
	var bestScore float64
	for _, v := range p.vocabulary {
		if s := matchr.JaroWinkler(word, v, false); s > bestScore {
			best, bestScore = v, s
		}
	}
	if bestScore >= p.hintThreshold {
		return best, true
	}
	return "", false
}
