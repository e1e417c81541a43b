package covers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	spaces          = regexp.MustCompile(`\s+`)
)

// QueryTitle prepares a title for the search query: NFC normalized with
// whitespace collapsed.
func QueryTitle(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// MatchKey reduces a title to a comparison key.
// "L'Étranger" -> "l etranger".
// "  Dune:  Messiah " -> "dune messiah".
func MatchKey(s string) string {
	// Decompose accented characters and drop the combining marks.
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// bestMatch returns the first document whose title matches title and has a
// cover, falling back to the first document.
func bestMatch(docs []searchDoc, title string) (searchDoc, bool) {
	if len(docs) == 0 {
		return searchDoc{}, false
	}
	want := MatchKey(title)
	for _, d := range docs {
		if d.CoverID != 0 && MatchKey(d.Title) == want {
			return d, true
		}
	}
	return docs[0], true
}
