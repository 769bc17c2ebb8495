package convalidation

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// SuggestThreshold is the minimum score (exclusive) for manual suggestions.
	SuggestThreshold = 0.30
	// AutoAcceptThreshold is the minimum score (inclusive) for bulk acceptance.
	AutoAcceptThreshold = 0.80
	// DefaultSuggestionLimit caps ranked suggestion lists.
	DefaultSuggestionLimit = 5

	levenshteinWeight = 0.6
	wordWeight        = 0.4
)

// stopWords are Spanish articles, prepositions and conjunctions ignored when comparing names.
var stopWords = []string{
	"de", "del", "la", "las", "el", "los", "lo", "y", "e", "o", "u",
	"en", "a", "al", "para", "por", "con", "sin", "un", "una", "unos", "unas",
}

// Similarity scores how likely two subject names describe the same course.
// The result lies in [0,1] and is symmetric.
func Similarity(a, b string) float64 {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na != "" && na == nb {
		return 1
	}

	sa := stripStopWords(na)
	sb := stripStopWords(nb)

	return levenshteinWeight*levenshteinSimilarity(sa, sb) + wordWeight*jaccard(sa, sb)
}

// NormalizeName lower-cases, trims, folds accents and collapses whitespace.
func NormalizeName(name string) string {
	folded, _, err := transform.String(accentFolder(), name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func stripStopWords(s string) string {
	padded := " " + s + " "
	for _, w := range stopWords {
		token := " " + w + " "
		for strings.Contains(padded, token) {
			padded = strings.ReplaceAll(padded, token, " ")
		}
	}
	return strings.TrimSpace(padded)
}

func levenshteinSimilarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein computes the edit distance with a two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func jaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	union := make(map[string]struct{}, len(wa)+len(wb))
	intersection := 0
	for w := range wa {
		union[w] = struct{}{}
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	for w := range wb {
		union[w] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	if s == "" {
		return set
	}
	for _, w := range strings.Split(s, " ") {
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// Suggestion is a ranked internal-subject candidate for an external subject.
type Suggestion struct {
	Subject   Subject `json:"subject"`
	Score     float64 `json:"score"`
	ExactCode bool    `json:"exact_code"`
}

// Matcher ranks internal subjects against an external one.
type Matcher struct {
	SuggestThreshold    float64
	AutoAcceptThreshold float64
	Limit               int
}

// DefaultMatcher returns a matcher with the standard thresholds.
func DefaultMatcher() Matcher {
	return Matcher{
		SuggestThreshold:    SuggestThreshold,
		AutoAcceptThreshold: AutoAcceptThreshold,
		Limit:               DefaultSuggestionLimit,
	}
}

// Suggest returns candidates scoring above the suggestion threshold, best first.
// Code matches are always included with score 1. Ties keep candidate order.
func (m Matcher) Suggest(external Subject, candidates []Subject) []Suggestion {
	suggestions := make([]Suggestion, 0)
	for _, candidate := range candidates {
		if codesMatch(external.Code, candidate.Code) {
			suggestions = append(suggestions, Suggestion{Subject: candidate, Score: 1, ExactCode: true})
			continue
		}
		score := Similarity(external.Name, candidate.Name)
		if score > m.SuggestThreshold {
			suggestions = append(suggestions, Suggestion{Subject: candidate, Score: score})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})

	limit := m.Limit
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// AutoMatch picks the candidate to accept without human review: the first code match,
// otherwise the best name score at or above the auto-accept threshold.
func (m Matcher) AutoMatch(external Subject, candidates []Subject) (Suggestion, bool) {
	var best Suggestion
	found := false
	for _, candidate := range candidates {
		if codesMatch(external.Code, candidate.Code) {
			return Suggestion{Subject: candidate, Score: 1, ExactCode: true}, true
		}
	}
	for _, candidate := range candidates {
		score := Similarity(external.Name, candidate.Name)
		if score >= m.AutoAcceptThreshold && (!found || score > best.Score) {
			best = Suggestion{Subject: candidate, Score: score}
			found = true
		}
	}
	return best, found
}

func codesMatch(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && strings.EqualFold(a, strings.TrimSpace(b))
}
