package namematch

import (
	"slices"
	"testing"
)

// TestScore tests the fixed score levels.
func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"different first names", "JOHN SMITH", "JANE SMITH", 0},
		{"different last names", "JOHN SMITH", "JOHN SMYTH", 0},
		{"middle initial confirms", "JOHN MICHAEL SMITH", "JOHN M SMITH", 1.0},
		{"identical middles", "MARIA G LOPEZ", "MARIA G LOPEZ", 1.0},
		{"one side lacks middle", "JOHN SMITH", "JOHN ROBERT SMITH", 0.9},
		{"neither has middle", "JOHN SMITH", "john smith", 0.9},
		{"conflicting middles", "JOHN MICHAEL SMITH", "JOHN DAVID SMITH", 0.7},
		{"any middle pair confirms", "ANNA MARIE LOUISE BELL", "ANNA L BELL", 1.0},
		{"single token", "SMITH", "JOHN SMITH", 0},
		{"empty", "", "JOHN SMITH", 0},
		{"punctuation and case", "patrick j. o'brien", "PATRICK JAMES O'BRIEN", 1.0},
		{"diacritics folded", "José Luis García", "JOSE L GARCIA", 1.0},
		{"initial only prefixes", "JOHN M SMITH", "JOHN DAVID SMITH", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Score(tt.a, tt.b); got != tt.want {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// TestScoreSymmetric tests Score(a, b) == Score(b, a).
func TestScoreSymmetric(t *testing.T) {
	t.Parallel()

	names := []string{
		"JOHN SMITH", "JANE SMITH", "JOHN MICHAEL SMITH", "JOHN M SMITH",
		"JOHN ROBERT SMITH", "JOHN DAVID SMITH", "SMITH", "MARIA G LOPEZ",
	}
	for _, a := range names {
		for _, b := range names {
			if Score(a, b) != Score(b, a) {
				t.Errorf("Score not symmetric for %q / %q", a, b)
			}
		}
	}
}

// TestTokens tests name normalization.
func TestTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"  john   q. public ", []string{"JOHN", "Q", "PUBLIC"}},
		{"SMITH-JONES, ANN", []string{"SMITH", "JONES", "ANN"}},
		{"D’Angelo Renée", []string{"DANGELO", "RENEE"}},
		{"", nil},
	}

	for _, tt := range tests {
		if got := Tokens(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("Tokens(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestNeedsReview tests the threshold flag.
func TestNeedsReview(t *testing.T) {
	t.Parallel()

	if !NeedsReview(MinAcceptScore) {
		t.Error("expected threshold score to need review")
	}
	if NeedsReview(ScoreUnconfirmed) || NeedsReview(ScoreConfirmed) {
		t.Error("expected higher scores not to need review")
	}
}
