// Package util provides shared utility functions used across the codebase.
package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SplitCSV splits a comma-separated string into a slice, trimming whitespace.
// Returns nil for empty strings.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// NormalizeName folds an identifier for loose matching: accents are stripped,
// letters lowercased, and spaces or hyphens become underscores.
// "Employé", "employe" and "EMPLOYE" all normalize to "employe".
func NormalizeName(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		folded = norm.NFC.String(strings.TrimSpace(s))
	}
	folded = strings.ToLower(folded)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, folded)
}

// NFC returns s in Unicode normalization form C. Identifiers read from
// different databases may use composed or decomposed accents.
func NFC(s string) string {
	return norm.NFC.String(s)
}
