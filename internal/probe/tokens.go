package probe

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates the token count of a text fragment: each CJK
// codepoint in U+4E00..U+9FFF counts as one token, plus each whitespace
// delimited alphabetic word (a CJK run is itself alphabetic, so it counts
// both ways). A non-empty fragment counts as at least one token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	cjk := 0
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}

	words := 0
	for _, w := range strings.Fields(text) {
		if isAlphabetic(w) {
			words++
		}
	}

	total := cjk + words
	if total < 1 {
		total = 1
	}
	return total
}

func isAlphabetic(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
