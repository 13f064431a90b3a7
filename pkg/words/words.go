package words

import (
	"iter"
	"regexp"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// MinLength and MaxLength bound the rune length of a stored word.
	MinLength = 3
	MaxLength = 15
	// MinOccurrences is how many times a word must appear in one text to be kept.
	MinOccurrences = 3
)

// Letters are Latin (accented letters included, fullwidth forms excluded) or
// Cyrillic; everything else separates words.
var reLetters = regexp.MustCompile(`(?:[^\P{Latin}\x{FF21}-\x{FF3A}\x{FF41}-\x{FF5A}]|\p{Cyrillic})+`)

// Normalize lowercases s the way words are stored and matched.
func Normalize(s string) string {
	return cases.Lower(language.Und).String(s)
}

// ValidLength reports whether w has between MinLength and MaxLength runes.
func ValidLength(w string) bool {
	n := utf8.RuneCountInString(w)
	return n >= MinLength && n <= MaxLength
}

// Extract yields the lowercased letter runs of text whose length is within
// [MinLength, MaxLength], in source order. Runs outside the bounds are skipped
// whole; they are never split into shorter tokens.
func Extract(text string) iter.Seq[string] {
	lowered := Normalize(text)
	return func(yield func(string) bool) {
		rest := lowered
		for rest != "" {
			loc := reLetters.FindStringIndex(rest)
			if loc == nil {
				return
			}
			w := rest[loc[0]:loc[1]]
			rest = rest[loc[1]:]
			if !ValidLength(w) {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}
}

// Group counts identical tokens.
func Group(tokens iter.Seq[string]) map[string]int {
	counts := make(map[string]int)
	for w := range tokens {
		counts[w]++
	}
	return counts
}

// Filter keeps the words seen at least MinOccurrences times. The result is a
// new map; counts is not modified.
func Filter(counts map[string]int) map[string]int {
	return lo.PickBy(counts, func(w string, n int) bool {
		return n >= MinOccurrences && ValidLength(w)
	})
}

// GroupAndFilter groups tokens and drops the noise words. An empty result means
// the text has nothing worth storing.
func GroupAndFilter(tokens iter.Seq[string]) map[string]int {
	return Filter(Group(tokens))
}
