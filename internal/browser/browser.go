// Package browser wraps headless Chrome behind a small Page interface so the
// site adapters can be driven by chromedp in production and by canned HTML
// in tests.
//
// Every browser is single-use: Use launches a fresh instance, hands its page
// to the callback and closes it on every exit path. Instances are never
// shared between records, so cookies and history cannot bleed across runs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// Page is one browser tab. Selectors are CSS selectors.
type Page interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error

	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	// HTML returns the outer HTML of the current document.
	HTML(ctx context.Context) (string, error)

	// URL returns the current location.
	URL(ctx context.Context) (string, error)

	// Click waits for the element to be visible and clicks it.
	Click(ctx context.Context, selector string) error

	// Fill replaces the value of an input by typing into it.
	Fill(ctx context.Context, selector, value string) error

	// WaitVisible blocks until the element is visible or the navigation
	// timeout expires.
	WaitVisible(ctx context.Context, selector string) error

	// Close releases the tab and its browser process.
	Close() error
}

// Launcher starts a new, isolated browser and returns its first page.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// Use launches a browser, runs fn with its page and closes the browser
// whether fn returns, fails or panics.
func Use(ctx context.Context, l Launcher, fn func(Page) error) (err error) {
	page, err := l.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close browser: %w", cerr))
		}
	}()
	return fn(page)
}

// DefaultPollInterval is how often WaitForAny re-reads the page.
const DefaultPollInterval = 250 * time.Millisecond

// WaitForAny polls the page until one of the selectors matches and returns
// that selector. Selectors are checked in order, so list the most specific
// first. It returns an error wrapping model.ErrTimeout when ctx expires.
func WaitForAny(ctx context.Context, p Page, interval time.Duration, selectors ...string) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		src, err := p.HTML(ctx)
		if err == nil {
			if sel, ok := firstMatch(src, selectors); ok {
				return sel, nil
			}
		} else if ctx.Err() == nil && !errors.Is(err, model.ErrTimeout) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: waiting for %v", model.ErrTimeout, selectors)
		case <-ticker.C:
		}
	}
}

func firstMatch(src string, selectors []string) (string, bool) {
	doc, err := htmlutil.Parse(src)
	if err != nil {
		return "", false
	}
	for _, sel := range selectors {
		if matches(doc, sel) {
			return sel, true
		}
	}
	return "", false
}

func matches(doc *goquery.Document, sel string) bool {
	return sel != "" && doc.Find(sel).Length() > 0
}

// DefaultControlWait bounds the search for a form control that some page
// layouts do not have.
const DefaultControlWait = 3 * time.Second

// ErrNoControl is returned by ClickOptional and FillOptional when the
// control did not appear in time.
var ErrNoControl = errors.New("control not on page")

// Present reports whether selector matches the page within wait.
func Present(ctx context.Context, p Page, wait time.Duration, selector string) bool {
	if selector == "" {
		return false
	}
	if wait <= 0 {
		wait = DefaultControlWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	_, err := WaitForAny(waitCtx, p, DefaultPollInterval, selector)
	return err == nil
}

// ClickOptional clicks selector if it shows up within wait. A missing
// control costs wait, not the full navigation timeout.
func ClickOptional(ctx context.Context, p Page, wait time.Duration, selector string) error {
	if !Present(ctx, p, wait, selector) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNoControl, selector)
	}
	return p.Click(ctx, selector)
}

// FillOptional types value into selector if it shows up within wait.
func FillOptional(ctx context.Context, p Page, wait time.Duration, selector, value string) error {
	if !Present(ctx, p, wait, selector) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNoControl, selector)
	}
	return p.Fill(ctx, selector, value)
}

// Pause sleeps for a random duration in [lo, hi]. Adapters call it before
// every navigation so request timing does not look scripted.
func Pause(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += time.Duration(rand.Int64N(int64(hi - lo + 1))) //nolint:gosec // timing jitter, not security
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
