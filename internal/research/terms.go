package research

import (
	"strings"
	"unicode"

	"github.com/samber/lo"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"been": true, "but": true, "by": true, "can": true, "could": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "how": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "of": true, "on": true, "or": true, "over": true,
	"should": true, "so": true, "some": true, "than": true, "that": true, "the": true,
	"their": true, "them": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "to": true, "under": true, "was": true, "we": true, "were": true,
	"what": true, "when": true, "where": true, "which": true, "while": true, "who": true,
	"why": true, "will": true, "with": true, "within": true, "would": true, "you": true,
	"your": true, "about": true, "between": true, "across": true, "most": true, "more": true,
	"other": true, "also": true, "any": true, "each": true, "our": true, "via": true,
	"i": true, "me": true, "my": true, "if": true, "not": true, "no": true, "all": true,
}

// Normalize lowercases s and collapses punctuation and whitespace so that
// "Remote work: tips?" and "remote work tips" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// HasWordChars reports whether s contains at least one letter or digit.
func HasWordChars(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// SalientTerms returns the distinct stemmed non-stopword terms of s in
// first-seen order.
func SalientTerms(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(Normalize(s)) {
		if stopwords[w] || len([]rune(w)) < 2 {
			continue
		}
		t := stem(w)
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// TermSet is SalientTerms as a set.
func TermSet(s string) map[string]bool {
	terms := SalientTerms(s)
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

// stem strips a few common English suffixes. It only needs to make
// "diagnoses"/"diagnosis" or "tips"/"tip" collide, not be linguistically right.
func stem(w string) string {
	n := len(w)
	switch {
	case n > 5 && strings.HasSuffix(w, "ing"):
		return w[:n-3]
	case n > 4 && strings.HasSuffix(w, "ies"):
		return w[:n-3] + "y"
	case n > 4 && (strings.HasSuffix(w, "ses") || strings.HasSuffix(w, "sis")):
		return w[:n-2]
	case n > 4 && strings.HasSuffix(w, "ed"):
		return w[:n-2]
	case n > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:n-1]
	}
	return w
}

// QueryTerms returns the salient terms of q. A query with none, such as "C"
// or "IT", falls back to its distinct normalized words; literal reports
// that fallback.
func QueryTerms(q string) (terms []string, literal bool) {
	if t := SalientTerms(q); len(t) > 0 {
		return t, false
	}
	return lo.Uniq(strings.Fields(Normalize(q))), true
}

// matchSet is the set QueryTerms results are looked up in.
func matchSet(s string, literal bool) map[string]bool {
	if !literal {
		return TermSet(s)
	}
	return lo.SliceToMap(strings.Fields(Normalize(s)), func(w string) (string, bool) { return w, true })
}

// SharesTerm reports whether text shares at least one of query's terms.
func SharesTerm(text, query string) bool {
	qt, literal := QueryTerms(query)
	set := matchSet(text, literal)
	return lo.SomeBy(qt, func(t string) bool { return set[t] })
}

// Jaccard is the salient-term Jaccard similarity of a and b.
func Jaccard(a, b string) float64 {
	sa, sb := TermSet(a), TermSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// NearDuplicateThreshold is the Jaccard similarity at which two sub-queries
// count as the same question.
const NearDuplicateThreshold = 0.75

// NearDuplicate reports whether a and b are the same text modulo case and
// punctuation, or overlap heavily in salient terms.
func NearDuplicate(a, b string) bool {
	if Normalize(a) == Normalize(b) {
		return true
	}
	return Jaccard(a, b) >= NearDuplicateThreshold
}

// Relevance is the fraction of query's terms that occur in text.
func Relevance(query, text string) float64 {
	qt, literal := QueryTerms(query)
	if len(qt) == 0 {
		return 0
	}
	set := matchSet(text, literal)
	hits := lo.CountBy(qt, func(t string) bool { return set[t] })
	return float64(hits) / float64(len(qt))
}

// TermDensity is the share of text's words whose stem is in terms. Repeated
// hits count each time.
func TermDensity(text string, terms map[string]bool) float64 {
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if !stopwords[w] && terms[stem(w)] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
