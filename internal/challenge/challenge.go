// Package challenge recognizes anti-bot interstitials. Every browser adapter
// checks pages through here so "we were blocked" is never misreported as
// "nothing found". Challenges are detected and reported, never solved.
package challenge

import (
	"context"
	"errors"
	"strings"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// Outcome is the result of checking a page.
type Outcome int

const (
	// OutcomeOK means no challenge markers were found.
	OutcomeOK Outcome = iota
	// OutcomeChallenged means the page is an anti-bot interstitial.
	OutcomeChallenged
	// OutcomeTimeout means the page could not be read before the deadline.
	OutcomeTimeout
)

// String returns a human-readable description of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeChallenged:
		return "challenged"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Result is a tagged check outcome. Reason names the marker that matched.
type Result struct {
	Outcome Outcome
	Reason  string
	Title   string
}

// Err returns the sentinel error for the outcome, or nil if OK.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeChallenged:
		return &model.PageError{Kind: model.ErrChallenged, Title: r.Title, Detail: r.Reason}
	case OutcomeTimeout:
		return model.ErrTimeout
	default:
		return errors.New("unknown challenge outcome")
	}
}

// titleMarkers are lowercase fragments of interstitial page titles.
var titleMarkers = []string{
	"just a moment",
	"attention required",
	"access denied",
	"are you a robot",
	"are you human",
	"verify you are human",
	"security check",
	"pardon our interruption",
	"captcha",
	"bot detection",
	"request unsuccessful",
}

// domMarkers are selectors only present on challenge pages.
var domMarkers = []string{
	"#challenge-form",
	"#challenge-running",
	"#cf-challenge-running",
	".cf-browser-verification",
	"#cf-wrapper .cf-error-details",
	"iframe[src*='challenges.cloudflare.com']",
	"iframe[src*='captcha']",
	".g-recaptcha",
	".h-captcha",
	"#px-captcha",
	"#distil_ident_block",
	"[data-sitekey]",
}

// Detect inspects a page title and HTML for challenge markers.
func Detect(title, src string) Result {
	lower := strings.ToLower(title)
	for _, m := range titleMarkers {
		if strings.Contains(lower, m) {
			return Result{Outcome: OutcomeChallenged, Reason: "title: " + m, Title: title}
		}
	}

	if src == "" {
		return Result{Outcome: OutcomeOK, Title: title}
	}
	doc, err := htmlutil.Parse(src)
	if err != nil {
		return Result{Outcome: OutcomeOK, Title: title}
	}
	for _, sel := range domMarkers {
		if doc.Find(sel).Length() > 0 {
			return Result{Outcome: OutcomeChallenged, Reason: "element: " + sel, Title: title}
		}
	}
	return Result{Outcome: OutcomeOK, Title: title}
}

// Check reads the current page and runs Detect. A read that fails because
// the deadline passed yields OutcomeTimeout.
func Check(ctx context.Context, p browser.Page) Result {
	title, err := p.Title(ctx)
	if err != nil {
		return readFailure(ctx, err)
	}
	src, err := p.HTML(ctx)
	if err != nil {
		return readFailure(ctx, err)
	}
	return Detect(title, src)
}

func readFailure(ctx context.Context, err error) Result {
	if errors.Is(err, model.ErrTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{Outcome: OutcomeTimeout, Reason: err.Error()}
	}
	// Unreadable but not timed out: let the caller's own parsing fail loudly.
	return Result{Outcome: OutcomeOK, Reason: err.Error()}
}
