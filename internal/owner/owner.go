// Package owner resolves the owner-of-record for a property by driving the
// county tax-assessor search in a headless browser.
package owner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dario.cat/mergo"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/challenge"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// Locator finds the owner of a property. It returns model.ErrNotFound when
// the property is absent from the source, which callers treat as a clean
// negative result rather than a failure.
type Locator interface {
	LocateOwner(ctx context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error)
}

// DefaultResultWait bounds the wait for the result page after submitting.
const DefaultResultWait = 20 * time.Second

// Selectors describes the assessor site. Every field has a default in
// DefaultSelectors; configuration only overrides what changed.
type Selectors struct {
	SearchURL string `yaml:"search_url"`

	// AddressMode switches the search form to property-address mode.
	AddressMode string `yaml:"address_mode"`
	StreetInput string `yaml:"street_input"`
	Submit      string `yaml:"submit"`

	// OwnerCell holds "NAME<br>MAILING LINE 1<br>MAILING LINE 2".
	// OwnerCellFallback is the same data in the alternate results layout.
	OwnerCell         string `yaml:"owner_cell"`
	OwnerCellFallback string `yaml:"owner_cell_fallback"`

	// DetailLink leads from a results row to the property detail page.
	DetailLink string `yaml:"detail_link"`

	// NoMatch is the explicit "no properties found" indicator.
	NoMatch string `yaml:"no_match"`

	// LabelRows are scanned on detail pages for an "Owner" label cell.
	LabelRows string `yaml:"label_rows"`
}

// DefaultSelectors returns the selectors for the assessor layout leadscan
// was built against.
func DefaultSelectors() Selectors {
	return Selectors{
		AddressMode:       "#search-by-address, a[data-search-type='address']",
		StreetInput:       "#address-search-input, input[name='situsAddress']",
		Submit:            "#address-search-button",
		OwnerCell:         "td.owner-info",
		OwnerCellFallback: "td[data-label='Owner'], div.owner-name-address",
		DetailLink:        "a.view-detail, a[href*='PropertyDetail']",
		NoMatch:           ".no-results, .no-match, #noRecordsFound",
		LabelRows:         "tr",
	}
}

// AssessorAdapter is a Locator backed by the tax-assessor website. Each call
// uses its own browser, closed before returning.
type AssessorAdapter struct {
	launcher    browser.Launcher
	sel         Selectors
	resultWait  time.Duration
	controlWait time.Duration
	logger      *slog.Logger
}

// Option configures an AssessorAdapter.
type Option func(*AssessorAdapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *AssessorAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithResultWait sets how long to wait for results after submitting.
func WithResultWait(d time.Duration) Option {
	return func(a *AssessorAdapter) {
		if d > 0 {
			a.resultWait = d
		}
	}
}

// WithControlWait sets how long to look for the optional address-mode
// control before assuming the form is already in address mode.
func WithControlWait(d time.Duration) Option {
	return func(a *AssessorAdapter) {
		if d > 0 {
			a.controlWait = d
		}
	}
}

// NewAssessorAdapter creates an AssessorAdapter. Empty selector fields take
// their DefaultSelectors values.
func NewAssessorAdapter(launcher browser.Launcher, sel Selectors, opts ...Option) *AssessorAdapter {
	_ = mergo.Merge(&sel, DefaultSelectors()) //nolint:errcheck // same struct type
	a := &AssessorAdapter{
		launcher:    launcher,
		sel:         sel,
		resultWait:  DefaultResultWait,
		controlWait: browser.DefaultControlWait,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ErrNoSearchURL is returned when the assessor search URL is not configured.
var ErrNoSearchURL = errors.New("assessor search URL is not configured")

// LocateOwner implements Locator.
func (a *AssessorAdapter) LocateOwner(ctx context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error) {
	if a.sel.SearchURL == "" {
		return nil, ErrNoSearchURL
	}
	if addr.Street == "" {
		return nil, fmt.Errorf("%w: address has no street", model.ErrNotFound)
	}

	var owner *model.OwnerRecord
	err := browser.Use(ctx, a.launcher, func(p browser.Page) error {
		var err error
		owner, err = a.search(ctx, p, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (a *AssessorAdapter) search(ctx context.Context, p browser.Page, addr model.NormalizedAddress) (*model.OwnerRecord, error) {
	if err := p.Navigate(ctx, a.sel.SearchURL); err != nil {
		return nil, fmt.Errorf("failed to open assessor search: %w", err)
	}
	if err := challenge.Check(ctx, p).Err(); err != nil {
		return nil, err
	}

	if err := browser.ClickOptional(ctx, p, a.controlWait, a.sel.AddressMode); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Some layouts open in address mode already.
		a.logger.Debug("address mode control not found", "selector", a.sel.AddressMode, "error", err)
	}
	if err := p.Fill(ctx, a.sel.StreetInput, addr.Street); err != nil {
		return nil, a.shapeError(ctx, p, "street input not found", err)
	}
	if err := p.Click(ctx, a.sel.Submit); err != nil {
		return nil, a.shapeError(ctx, p, "search button not found", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.resultWait)
	defer cancel()
	if _, err := browser.WaitForAny(waitCtx, p, browser.DefaultPollInterval,
		a.sel.OwnerCell, a.sel.OwnerCellFallback, a.sel.DetailLink, a.sel.NoMatch); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Debug("assessor results did not settle", "street", addr.Street, "error", err)
	}
	if err := challenge.Check(ctx, p).Err(); err != nil {
		return nil, err
	}

	doc, pageURL, err := readPage(ctx, p)
	if err != nil {
		return nil, err
	}

	res := parseResults(doc, a.sel)
	switch {
	case res.owner != nil:
		return res.owner, nil
	case res.detailHref != "":
		return a.followDetail(ctx, p, htmlutil.Resolve(pageURL, res.detailHref))
	case res.notFound:
		return nil, fmt.Errorf("%w: assessor has no record for %s", model.ErrNotFound, addr.Street)
	default:
		return nil, newShapeError(doc, pageURL, "results page matched no known layout")
	}
}

func (a *AssessorAdapter) followDetail(ctx context.Context, p browser.Page, href string) (*model.OwnerRecord, error) {
	if err := p.Navigate(ctx, href); err != nil {
		return nil, fmt.Errorf("failed to open property detail: %w", err)
	}
	if err := challenge.Check(ctx, p).Err(); err != nil {
		return nil, err
	}

	doc, pageURL, err := readPage(ctx, p)
	if err != nil {
		return nil, err
	}
	if owner := parseDetail(doc, a.sel); owner != nil {
		return owner, nil
	}
	return nil, newShapeError(doc, pageURL, "detail page has no owner field")
}

func (a *AssessorAdapter) shapeError(ctx context.Context, p browser.Page, detail string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	doc, pageURL, err := readPage(ctx, p)
	if err != nil {
		return &model.PageError{Kind: model.ErrShape, Detail: detail}
	}
	pe := newShapeError(doc, pageURL, detail)
	a.logger.Warn("assessor page shape not recognized", "url", pageURL, "title", pe.Title, "classes", pe.Classes)
	return pe
}
