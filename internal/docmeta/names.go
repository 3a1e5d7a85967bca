package docmeta

import (
	"strings"
)

// Common name suffixes to keep with the last name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
	"m.d":  true,
}

// Lowercase surname particles that start a multi-part last name.
var nameParticles = map[string]bool{
	"von":   true,
	"van":   true,
	"der":   true,
	"den":   true,
	"de":    true,
	"da":    true,
	"del":   true,
	"della": true,
	"di":    true,
	"du":    true,
	"la":    true,
	"le":    true,
	"ter":   true,
}

// SplitName splits an author name into first and last name.
//
// "Last, First" is split at the first comma. "Last, Jr., First" keeps the
// suffix with the last name. Otherwise the last word is the last name,
// extended leftwards over lowercase particles ("Ludwig van Beethoven") and
// suffixes ("Martin Luther King Jr").
func SplitName(name string) (first, last string) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ""
	}

	if strings.Contains(name, ",") {
		parts := strings.Split(name, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch len(parts) {
		case 2:
			return parts[1], parts[0]
		default:
			return strings.Join(parts[2:], " "), parts[0] + " " + parts[1]
		}
	}

	words := strings.Fields(name)
	if len(words) == 1 {
		return "", words[0]
	}

	end := len(words) - 1
	if nameSuffixes[strings.ToLower(words[end])] && len(words) > 2 {
		end--
	}
	start := end
	for start > 1 && nameParticles[words[start-1]] {
		start--
	}
	return strings.Join(words[:start], " "), strings.Join(words[start:], " ")
}
