// ABOUTME: Input normalization shared by all flow definitions
// ABOUTME: Trims, lowercases, collapses whitespace and applies synonym maps

package flow

import "strings"

// baseSynonyms map common phrasings to canonical menu tokens regardless of
// vertical. Vertical definitions layer their own synonyms on top.
var baseSynonyms = map[string]string{
	"yes":    "1",
	"yep":    "1",
	"si":     "1",
	"ok":     "1",
	"okay":   "1",
	"no":     "2",
	"nope":   "2",
	"one":    "1",
	"two":    "2",
	"three":  "3",
	"four":   "4",
	"first":  "1",
	"second": "2",
	"third":  "3",
}

// Normalize canonicalizes user input before table lookup: trim, lowercase,
// collapse internal whitespace, then apply vertical synonyms over the base
// set. Vertical entries win on conflict.
func Normalize(input string, synonyms map[string]string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.Join(strings.Fields(s), " ")

	if v, ok := synonyms[s]; ok {
		return v
	}
	if v, ok := baseSynonyms[s]; ok {
		return v
	}
	return s
}
