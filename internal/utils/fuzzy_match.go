package utils

import (
	"strings"
	"unicode"
)

// NormalizeTerm lower-cases a term and collapses punctuation, dashes and
// underscores into single spaces, so "Ocean-View_Deluxe" becomes "ocean view deluxe".
func NormalizeTerm(term string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(term)) {
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

// FuzzyMatchAlias reports whether searchTerm names the same thing as alias.
// Exact and plural forms match; containment only counts on word boundaries.
func FuzzyMatchAlias(searchTerm, alias string) bool {
	s := NormalizeTerm(searchTerm)
	a := NormalizeTerm(alias)
	if s == "" || a == "" {
		return false
	}

	// Exact match
	if s == a || strings.TrimSuffix(s, "s") == a {
		return true
	}

	// Word-bounded contains match
	return ContainsPhrase(s, a)
}

// ContainsPhrase reports whether the normalized phrase occurs in text as whole words
func ContainsPhrase(text, phrase string) bool {
	t := " " + NormalizeTerm(text) + " "
	p := NormalizeTerm(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(t, " "+p+" ") || strings.Contains(t, " "+p+"s ")
}
