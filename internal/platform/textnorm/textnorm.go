// Package textnorm folds free-text labels for the resolve-or-create lookups:
// "  Émilie  DUPONT " and "emilie dupont" must hit the same membre row.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s, strips diacritics and collapses internal whitespace.
func Fold(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// SplitName splits a free-text borrower label into (nom, prenom): the first
// word is the family name, the rest the given name.
func SplitName(label string) (nom, prenom string) {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
