package corpus

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation is the fixed set of characters removed from every token before
// comparison.
const punctuation = `.,;:!?"'-()[]{}`

var punctuationStripper = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(punctuation))
	for _, r := range punctuation {
		pairs = append(pairs, string(r), "")
	}
	return strings.NewReplacer(pairs...)
}()

// Normalize canonicalises a raw word token into its comparison key: surrounding
// whitespace is trimmed, the characters in [punctuation] are removed, the
// token is lowercased, Unicode-decomposed (NFD) and stripped of combining
// diacritics.
//
// Normalize is pure and idempotent. An empty result is valid and means the
// token carries no word.
func Normalize(token string) string {
	s := strings.TrimSpace(token)
	if s == "" {
		return ""
	}
	s = punctuationStripper.Replace(s)
	s = strings.ToLower(s)

	// Transformers carry internal state, so a fresh chain is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(fold, s)
	if err != nil {
		// Only reachable on invalid UTF-8; fall back to the lowered token.
		folded = s
	}
	return strings.TrimSpace(folded)
}
