package dedupe

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Process lowercases s, turns every non-alphanumeric rune into a space and
// collapses runs of whitespace.
func Process(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio is the Levenshtein similarity of a and b on [0,100]: 100 for equal
// strings, 0 when either is empty.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	d := levenshtein.ComputeDistance(a, b)
	return scale(1 - float64(d)/float64(max(la, lb)))
}

// PartialRatio is the best Ratio of the shorter string against every
// equally long window of the longer one.
func PartialRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return Ratio(a, b)
	}

	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		r := Ratio(s, string(long[i:i+len(short)]))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares a and b after processing and sorting their tokens.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(Process(s))
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}

// TokenSetRatio compares the shared tokens of a and b against each side's
// shared-plus-remaining tokens and returns the best ratio.
func TokenSetRatio(a, b string) int {
	pa, pb := Process(a), Process(b)
	if pa == "" || pb == "" {
		return 0
	}
	setA, setB := tokenSet(pa), tokenSet(pb)

	var inter, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	slices.Sort(inter)
	slices.Sort(onlyA)
	slices.Sort(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	return max(Ratio(t0, t1), Ratio(t0, t2), Ratio(t1, t2))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

func scale(f float64) int {
	return int(math.Round(100 * f))
}
