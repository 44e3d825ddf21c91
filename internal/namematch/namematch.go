// Package namematch scores how likely two human name strings denote the
// same person.
//
// The first and last tokens act as a hard gate: attributing a phone number
// to the wrong person is worse than missing one, so a mismatch there scores
// zero rather than a graded similarity. Middle names and initials only move
// the score between the fixed levels below.
package namematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Score levels.
const (
	// ScoreConfirmed is returned when first, last and a middle token agree.
	ScoreConfirmed = 1.0

	// ScoreUnconfirmed is returned when first and last agree and at least
	// one side has no middle tokens to compare.
	ScoreUnconfirmed = 0.9

	// ScoreConflicting is returned when first and last agree but the
	// middles disagree.
	ScoreConflicting = 0.7

	// MinAcceptScore is the lowest score a caller may accept. A score of
	// exactly MinAcceptScore should be flagged for manual review.
	MinAcceptScore = ScoreConflicting
)

// foldDiacritics strips combining marks so "JOSÉ" compares equal to "JOSE".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Tokens normalizes a name to uppercase alphabetic tokens. Apostrophes and
// periods are dropped so "O'BRIEN" stays one token and "J." becomes "J";
// every other non-letter separates tokens.
func Tokens(name string) []string {
	folded, _, err := transform.String(foldDiacritics, name)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	for _, r := range strings.ToUpper(folded) {
		switch {
		case r == '\'' || r == '’' || r == '.':
			continue
		case unicode.IsLetter(r):
			sb.WriteRune(r)
		default:
			sb.WriteRune(' ')
		}
	}
	return strings.Fields(sb.String())
}

// Score returns the confidence in [0,1] that a and b name the same person.
// It is symmetric and has no hidden state.
func Score(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) < 2 || len(tb) < 2 {
		return 0
	}

	if ta[0] != tb[0] || ta[len(ta)-1] != tb[len(tb)-1] {
		return 0
	}

	ma, mb := ta[1:len(ta)-1], tb[1:len(tb)-1]
	if len(ma) == 0 || len(mb) == 0 {
		return ScoreUnconfirmed
	}

	for _, x := range ma {
		for _, y := range mb {
			if middleMatches(x, y) {
				return ScoreConfirmed
			}
		}
	}
	return ScoreConflicting
}

// NeedsReview reports whether an accepted score sits exactly on the
// acceptance threshold.
func NeedsReview(score float64) bool {
	return score == MinAcceptScore
}

// middleMatches compares two middle tokens. A single-letter initial matches
// any token it prefixes.
func middleMatches(x, y string) bool {
	if x == y {
		return true
	}
	if len(x) == 1 && strings.HasPrefix(y, x) {
		return true
	}
	return len(y) == 1 && strings.HasPrefix(x, y)
}
