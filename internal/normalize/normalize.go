// Package normalize folds free-form place names and values into comparable
// forms for search-key comparison and dedup hashing.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics, replaces punctuation with spaces and
// collapses whitespace. "Marrakech-Safi" and "marrakech safi" fold equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// Hash returns a hex SHA-256 prefix of the joined parts. n is the number of
// hex characters kept; n <= 0 keeps the full digest.
func Hash(n int, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	s := hex.EncodeToString(h[:])
	if n > 0 && n < len(s) {
		return s[:n]
	}
	return s
}
