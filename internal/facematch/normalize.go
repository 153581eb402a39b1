package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Zoë" -> "Zoe").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeStudentName folds a name for search: no diacritics, lowercase,
// dashes and underscores as spaces, runs of whitespace collapsed.
func NormalizeStudentName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// NameMatchesQuery reports whether every word of query appears in name.
// An empty query matches everything.
func NameMatchesQuery(name, query string) bool {
	q := NormalizeStudentName(query)
	if q == "" {
		return true
	}
	n := NormalizeStudentName(name)
	for word := range strings.FieldsSeq(q) {
		if !strings.Contains(n, word) {
			return false
		}
	}
	return true
}
