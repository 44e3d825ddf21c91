// Package address parses the free-text property addresses printed on county
// records into street, city, state and ZIP.
//
// Inputs are inconsistently formatted government text, not validated postal
// data, so Normalize never fails: whatever cannot be recognized is left in the
// street field and the state falls back to DefaultState.
package address

import (
	"regexp"
	"strings"

	"github.com/nao1215/leadscan/internal/model"
)

// DefaultState is used when the tail segment carries no recognizable state.
const DefaultState = "TX"

// zipPattern matches a trailing 5-digit ZIP with an optional +4 suffix.
var zipPattern = regexp.MustCompile(`(\d{5})(?:-\d{4})?\s*$`)

// Clean collapses runs of whitespace to single spaces. Case is kept.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize parses raw into a NormalizedAddress.
//
// With three or more comma-separated segments the last is the "STATE ZIP"
// tail, the second-to-last is the city and everything before is the street.
// With two segments the city is whatever precedes the state in the tail.
// With one segment the whole input is the street.
func Normalize(raw string) model.NormalizedAddress {
	out := model.NormalizedAddress{Raw: raw, State: DefaultState}

	segments := splitSegments(Clean(raw))
	switch len(segments) {
	case 0:
		return out
	case 1:
		out.Street = segments[0]
		return out
	}

	tail := segments[len(segments)-1]
	if m := zipPattern.FindStringSubmatchIndex(tail); m != nil {
		out.Zip = tail[m[2]:m[3]]
		tail = strings.TrimSpace(tail[:m[0]])
	}

	state, rest := splitState(tail)
	if state != "" {
		out.State = state
	}

	// "STREET, CITY ST ZIP": with only two segments the city shares the
	// tail with the state and ZIP.
	if len(segments) == 2 {
		out.Street = segments[0]
		out.City = rest
		return out
	}

	out.City = segments[len(segments)-2]
	out.Street = strings.Join(segments[:len(segments)-2], ", ")
	return out
}

// splitSegments splits on commas and drops empty segments.
func splitSegments(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitState finds a state at the end of s, either as a postal code or a
// spelled-out name, in any case. It returns the postal code and whatever
// precedes it. An empty code means no state was recognized.
func splitState(s string) (code, rest string) {
	words := strings.Fields(strings.ReplaceAll(s, ".", ""))
	if len(words) == 0 {
		return "", ""
	}

	last := strings.ToUpper(words[len(words)-1])
	if len(last) == 2 && postalCodes[last] {
		return last, strings.Join(words[:len(words)-1], " ")
	}

	// Prefer the longest spelled-out match so "WEST VIRGINIA" wins over "VIRGINIA".
	for n := min(maxStateWords, len(words)); n >= 1; n-- {
		name := strings.ToUpper(strings.Join(words[len(words)-n:], " "))
		if abbr, ok := stateAbbreviations[name]; ok {
			return abbr, strings.Join(words[:len(words)-n], " ")
		}
	}

	return "", s
}
