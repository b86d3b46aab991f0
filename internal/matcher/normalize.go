package matcher

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

var stopWords = map[string]bool{
	"will": true, "the": true, "be": true, "by": true, "on": true, "in": true,
	"at": true, "to": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "have": true, "has": true, "had": true,
	"for": true, "of": true,
}

// discriminatorTerms change what a question resolves on. A pair where one
// side carries the term and the other does not is never matched.
var discriminatorTerms = []string{
	"primary", "general", "runoff", "plurality", "majority", "at least", "more than",
}

// deadlineTerms mark time-bounded questions that may resolve early.
var deadlineTerms = []string{"by end of", "before"}

// lowerText lowercases s, drops punctuation and collapses whitespace while
// keeping every word. Phrase lookups run on this form.
func lowerText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Canonicalize returns the comparison form of a market question: lowercase,
// punctuation stripped, whitespace collapsed and stop-words removed.
func Canonicalize(question string) string {
	words := strings.Fields(lowerText(question))
	kept := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Keywords returns the set of canonical tokens longer than two characters.
func Keywords(question string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(Canonicalize(question)) {
		if len([]rune(w)) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

// TextRatio is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func TextRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// KeywordOverlap is the Jaccard index of the two keyword sets. Empty sets
// score zero.
func KeywordOverlap(a, b string) float64 {
	ka, kb := Keywords(a), Keywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	inter := 0
	for w := range ka {
		if _, ok := kb[w]; ok {
			inter++
		}
	}
	union := len(ka) + len(kb) - inter
	return float64(inter) / float64(union)
}

// Similarity blends the canonical text ratio (70%) with keyword overlap (30%).
func Similarity(a, b string) float64 {
	return 0.7*TextRatio(Canonicalize(a), Canonicalize(b)) + 0.3*KeywordOverlap(a, b)
}

func containsTerm(text, term string) bool {
	return strings.Contains(" "+text+" ", " "+term+" ")
}

// OneSided returns the discriminator terms present in exactly one question.
func OneSided(a, b string) []string {
	la, lb := lowerText(a), lowerText(b)
	var out []string
	for _, t := range discriminatorTerms {
		if containsTerm(la, t) != containsTerm(lb, t) {
			out = append(out, t)
		}
	}
	return out
}

// DeadlineQualifiers returns the deadline terms present in both questions.
func DeadlineQualifiers(a, b string) []string {
	la, lb := lowerText(a), lowerText(b)
	var out []string
	for _, t := range deadlineTerms {
		if containsTerm(la, t) && containsTerm(lb, t) {
			out = append(out, t)
		}
	}
	return out
}

// HasDeadline reports whether question carries any deadline term.
func HasDeadline(question string) bool {
	l := lowerText(question)
	for _, t := range deadlineTerms {
		if containsTerm(l, t) {
			return true
		}
	}
	return false
}
