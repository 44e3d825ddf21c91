package listing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/challenge"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// DefaultRowWait is how long the browser strategy waits for the results
// table to populate.
const DefaultRowWait = 20 * time.Second

// BrowserStrategy renders the portal in a headless browser and reads the
// populated results table.
type BrowserStrategy struct {
	launcher browser.Launcher
	portal   Portal
	rowWait  time.Duration
	logger   *slog.Logger
}

// BrowserOption configures a BrowserStrategy.
type BrowserOption func(*BrowserStrategy)

// WithRowWait sets how long to wait for result rows.
func WithRowWait(d time.Duration) BrowserOption {
	return func(s *BrowserStrategy) {
		if d > 0 {
			s.rowWait = d
		}
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(s *BrowserStrategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBrowserStrategy creates a BrowserStrategy.
func NewBrowserStrategy(launcher browser.Launcher, portal Portal, opts ...BrowserOption) *BrowserStrategy {
	s := &BrowserStrategy{
		launcher: launcher,
		portal:   withDefaults(portal),
		rowWait:  DefaultRowWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Strategy.
func (s *BrowserStrategy) Name() string { return "browser" }

// searchURL renders the search URL with query parameters.
func (s *BrowserStrategy) searchURL(q Query) (string, error) {
	u, err := url.Parse(s.portal.SearchURL)
	if err != nil {
		return "", fmt.Errorf("invalid portal search URL: %w", err)
	}
	values := u.Query()
	for k, v := range s.portal.params(q) {
		values.Set(k, v)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Fetch implements Strategy.
func (s *BrowserStrategy) Fetch(ctx context.Context, q Query) ([]model.RawListingRecord, model.PageDiagnostics, error) {
	diag := model.PageDiagnostics{URL: s.portal.SearchURL}
	if s.portal.SearchURL == "" {
		return nil, diag, ErrNoSearchURL
	}
	target, err := s.searchURL(q)
	if err != nil {
		return nil, diag, err
	}
	diag.URL = target

	var records []model.RawListingRecord
	err = browser.Use(ctx, s.launcher, func(p browser.Page) error {
		if err := p.Navigate(ctx, target); err != nil {
			return fmt.Errorf("failed to load portal: %w", err)
		}

		if ch := challenge.Check(ctx, p); ch.Outcome == challenge.OutcomeChallenged {
			diag.Title = ch.Title
			diag.Verdict = model.VerdictBlocked
			return ch.Err()
		}

		waitCtx, cancel := context.WithTimeout(ctx, s.rowWait)
		defer cancel()
		if _, err := browser.WaitForAny(waitCtx, p, browser.DefaultPollInterval, s.portal.RowSelector+" td", s.portal.EmptySelector); err != nil {
			// The page is still read below; the diagnostics explain what rendered instead.
			s.logger.Debug("results table did not populate", "url", target, "error", err)
		}

		src, err := p.HTML(ctx)
		if err != nil {
			return fmt.Errorf("failed to read rendered portal: %w", err)
		}
		doc, err := htmlutil.Parse(src)
		if err != nil {
			return fmt.Errorf("failed to parse rendered portal: %w", err)
		}

		records, _ = parseTable(doc, s.portal)
		d := diagnose(doc, src, s.portal, len(records))
		d.URL = target
		if len(records) > 0 {
			d.Source = "table"
		}
		diag = d
		return nil
	})
	if err != nil {
		return nil, diag, err
	}
	return records, diag, nil
}
