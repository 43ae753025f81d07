// Package textutil provides tokenization and similarity helpers used to
// decide whether two caption observations are revisions of the same
// utterance.
//
// Tokenization lowercases text and splits on non-alphanumeric runs, so
// punctuation inserted or removed by the speech recognizer does not affect
// comparison. Short words are kept: caption lines are short and dropping
// stopwords would starve the overlap ratio.
package textutil

import (
	"regexp"
	"strings"
)

// tokenSplitPattern matches non-alphanumeric character runs.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9']+`)

// Tokenize splits text into lowercase punctuation-stripped tokens.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	raw := tokenSplitPattern.Split(lowered, -1)
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.Trim(token, "'")
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// TokenSet returns the unique tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// OverlapRatio computes the token-set overlap between a and b, normalized by
// the smaller set. Returns 0 when either text has no tokens.
func OverlapRatio(a, b string) float64 {
	setA := TokenSet(a)
	setB := TokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	small, large := setA, setB
	if len(large) < len(small) {
		small, large = large, small
	}
	var shared int
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// IsPrefixBeyond reports whether one string is a prefix of the other and the
// shorter of the two is at least minLen runes. A prefix shorter than minLen
// is too little text to call the lines the same utterance.
func IsPrefixBeyond(a, b string, minLen int) bool {
	shorter, longer := a, b
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	if len([]rune(shorter)) < minLen {
		return false
	}
	return strings.HasPrefix(longer, shorter)
}

// SharesPrefix reports whether a and b agree on their first n runes. When
// either string is shorter than n the comparison covers the shorter length,
// and empty strings never share a prefix.
func SharesPrefix(a, b string, n int) bool {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return false
	}
	if len(ra) < n {
		n = len(ra)
	}
	if len(rb) < n {
		n = len(rb)
	}
	return string(ra[:n]) == string(rb[:n])
}
