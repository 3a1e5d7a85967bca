// Package dedupe finds likely duplicate documents with a fuzzy similarity
// score over authors, title and publication/year.
package dedupe

import (
	"strings"
	"unicode/utf8"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// DefaultThreshold is the minimum score for two documents to be duplicates.
const DefaultThreshold = 60

// Key holds the strings a document is compared on.
type Key struct {
	ID      int64
	Authors string
	Title   string
	PubYear string
}

// KeyOf extracts the comparison strings of a document, each lowercased
// and stripped of punctuation so field weights count the same characters
// the ratios compare.
func KeyOf(m *docmeta.Meta) Key {
	return Key{
		ID:      m.ID,
		Authors: Process(strings.Join(m.Authors(), " ")),
		Title:   Process(m.Title),
		PubYear: Process(m.Publication + " " + m.Year),
	}
}

// ScoreKeys combines token-sort (authors), partial (title) and token-set
// (publication and year) ratios, each weighted by half the summed length of
// the two compared strings. Fields empty on both sides weigh nothing. The
// result is on [0,100].
func ScoreKeys(a, b Key) float64 {
	wA := weight(a.Authors, b.Authors)
	wT := weight(a.Title, b.Title)
	wO := weight(a.PubYear, b.PubYear)
	total := wA + wT + wO
	if total == 0 {
		return 0
	}

	var sum float64
	if wA > 0 {
		sum += wA * float64(TokenSortRatio(a.Authors, b.Authors))
	}
	if wT > 0 {
		sum += wT * float64(PartialRatio(a.Title, b.Title))
	}
	if wO > 0 {
		sum += wO * float64(TokenSetRatio(a.PubYear, b.PubYear))
	}
	return sum / total
}

// Score compares two documents.
func Score(a, b *docmeta.Meta) float64 {
	return ScoreKeys(KeyOf(a), KeyOf(b))
}

func weight(a, b string) float64 {
	return float64(utf8.RuneCountInString(a)+utf8.RuneCountInString(b)) / 2
}
