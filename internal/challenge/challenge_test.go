package challenge

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/leadscan/internal/browser/browsertest"
	"github.com/nao1215/leadscan/internal/model"
)

// TestDetect tests title and DOM challenge markers.
func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		html  string
		want  Outcome
	}{
		{"cloudflare title", "Just a moment...", "", OutcomeChallenged},
		{"access denied title", "Access Denied", "<html></html>", OutcomeChallenged},
		{"recaptcha element", "Search", `<html><body><div class="g-recaptcha" data-sitekey="x"></div></body></html>`, OutcomeChallenged},
		{"challenge form", "Search", `<html><body><form id="challenge-form"></form></body></html>`, OutcomeChallenged},
		{"plain results", "Search Results", `<html><body><div class="card-summary">Maria</div></body></html>`, OutcomeOK},
		{"empty", "", "", OutcomeOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Detect(tt.title, tt.html)
			if got.Outcome != tt.want {
				t.Errorf("Detect() = %s (%s), want %s", got.Outcome, got.Reason, tt.want)
			}
		})
	}
}

// TestResultErr tests the mapping from outcome to error kind.
func TestResultErr(t *testing.T) {
	t.Parallel()

	if err := (Result{Outcome: OutcomeOK}).Err(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	err := Result{Outcome: OutcomeChallenged, Reason: "title: just a moment", Title: "Just a moment..."}.Err()
	if !errors.Is(err, model.ErrChallenged) {
		t.Errorf("expected ErrChallenged, got %v", err)
	}
	if model.ClassifyError(err) != model.FailureChallenge {
		t.Error("expected challenge failure kind")
	}

	if err := (Result{Outcome: OutcomeTimeout}).Err(); !errors.Is(err, model.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

// TestCheck tests checking a live page.
func TestCheck(t *testing.T) {
	t.Parallel()

	site := &browsertest.Site{Pages: map[string]string{
		"https://p.test/": `<html><head><title>Attention Required! | Cloudflare</title></head><body></body></html>`,
	}}
	l := browsertest.NewLauncher(site)
	page, _ := l.Launch(context.Background())
	if err := page.Navigate(context.Background(), "https://p.test/"); err != nil {
		t.Fatal(err)
	}

	got := Check(context.Background(), page)
	if got.Outcome != OutcomeChallenged {
		t.Errorf("expected challenged, got %s", got.Outcome)
	}
	if got.Title != "Attention Required! | Cloudflare" {
		t.Errorf("unexpected title %q", got.Title)
	}
}
