// Package contact finds phone numbers and emails for a property owner by
// driving a people-search website in a headless browser and picking the
// person whose name best matches the owner of record.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/challenge"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/leadscan/internal/namematch"
)

// Locator finds contact details for a named owner at an address. It returns
// model.ErrNotFound when no usable person is found.
type Locator interface {
	LocateContacts(ctx context.Context, ownerName string, addr model.NormalizedAddress) (*model.ContactRecord, error)
}

// Default navigation pacing and result wait.
const (
	DefaultDelayMin   = time.Second
	DefaultDelayMax   = 2 * time.Second
	DefaultResultWait = 20 * time.Second
)

// ErrNoHomeURL is returned when the people-search URL is not configured.
var ErrNoHomeURL = errors.New("people-search URL is not configured")

// Selectors describes the people-search site.
type Selectors struct {
	HomeURL string `yaml:"home_url"`

	AddressTab        string `yaml:"address_tab"`
	StreetInput       string `yaml:"street_input"`
	CityStateZipInput string `yaml:"city_state_zip_input"`
	Submit            string `yaml:"submit"`

	// Cards are person summaries on the results page.
	Cards    string `yaml:"cards"`
	CardName string `yaml:"card_name"`
	CardLink string `yaml:"card_link"`

	NoResults string `yaml:"no_results"`

	PhoneSection string `yaml:"phone_section"`
	EmailSection string `yaml:"email_section"`
}

// DefaultSelectors returns the selectors for the people-search layout
// leadscan was built against.
func DefaultSelectors() Selectors {
	return Selectors{
		AddressTab:        "#address-tab, a[data-search='address'], button[data-tab='address']",
		StreetInput:       "#address-street, input[name='street']",
		CityStateZipInput: "#address-citystatezip, input[name='citystatezip']",
		Submit:            "#address-search-submit",
		Cards:             ".card-summary, .person-card",
		CardName:          ".card-title .larger, .person-name, h2",
		CardLink:          "a.detail-link, a[href*='/details/']",
		NoResults:         ".no-results, #no-results",
		PhoneSection:      "#phone-numbers, .phone-numbers, section.phones",
		EmailSection:      "#email-addresses, .email-addresses, section.emails",
	}
}

// fallbackSubmit is clicked when the configured submit control is missing.
const fallbackSubmit = "button[type='submit'], input[type='submit']"

// PeopleSearchAdapter is a Locator backed by a people-search website. Each
// call uses its own browser, closed before returning.
type PeopleSearchAdapter struct {
	launcher      browser.Launcher
	sel           Selectors
	delayMin      time.Duration
	delayMax      time.Duration
	resultWait    time.Duration
	controlWait   time.Duration
	allowFallback bool
	mx            *MXVerifier
	logger        *slog.Logger
}

// Option configures a PeopleSearchAdapter.
type Option func(*PeopleSearchAdapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *PeopleSearchAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDelay sets the random pause taken before every navigation.
func WithDelay(lo, hi time.Duration) Option {
	return func(a *PeopleSearchAdapter) {
		if lo >= 0 && hi >= lo {
			a.delayMin, a.delayMax = lo, hi
		}
	}
}

// WithResultWait sets how long to wait for search results.
func WithResultWait(d time.Duration) Option {
	return func(a *PeopleSearchAdapter) {
		if d > 0 {
			a.resultWait = d
		}
	}
}

// WithControlWait sets how long to look for form controls that some
// layouts lack: the address tab and the configured inputs.
func WithControlWait(d time.Duration) Option {
	return func(a *PeopleSearchAdapter) {
		if d > 0 {
			a.controlWait = d
		}
	}
}

// WithFallback controls whether the first result is taken at
// FallbackConfidence when no name matches.
func WithFallback(allow bool) Option {
	return func(a *PeopleSearchAdapter) {
		a.allowFallback = allow
	}
}

// WithMXVerifier drops emails whose domains have no MX records.
func WithMXVerifier(v *MXVerifier) Option {
	return func(a *PeopleSearchAdapter) {
		a.mx = v
	}
}

// NewPeopleSearchAdapter creates a PeopleSearchAdapter. Empty selector
// fields take their DefaultSelectors values.
func NewPeopleSearchAdapter(launcher browser.Launcher, sel Selectors, opts ...Option) *PeopleSearchAdapter {
	_ = mergo.Merge(&sel, DefaultSelectors()) //nolint:errcheck // same struct type
	a := &PeopleSearchAdapter{
		launcher:      launcher,
		sel:           sel,
		delayMin:      DefaultDelayMin,
		delayMax:      DefaultDelayMax,
		resultWait:    DefaultResultWait,
		controlWait:   browser.DefaultControlWait,
		allowFallback: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LocateContacts implements Locator.
func (a *PeopleSearchAdapter) LocateContacts(ctx context.Context, ownerName string, addr model.NormalizedAddress) (*model.ContactRecord, error) {
	if a.sel.HomeURL == "" {
		return nil, ErrNoHomeURL
	}
	if strings.TrimSpace(ownerName) == "" {
		return nil, fmt.Errorf("%w: owner name is empty", model.ErrNotFound)
	}

	var rec *model.ContactRecord
	err := browser.Use(ctx, a.launcher, func(p browser.Page) error {
		var err error
		rec, err = a.search(ctx, p, ownerName, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *PeopleSearchAdapter) navigate(ctx context.Context, p browser.Page, url string) error {
	if err := browser.Pause(ctx, a.delayMin, a.delayMax); err != nil {
		return err
	}
	if err := p.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return challenge.Check(ctx, p).Err()
}

func (a *PeopleSearchAdapter) search(ctx context.Context, p browser.Page, ownerName string, addr model.NormalizedAddress) (*model.ContactRecord, error) {
	if err := a.navigate(ctx, p, a.sel.HomeURL); err != nil {
		return nil, err
	}

	if err := browser.ClickOptional(ctx, p, a.controlWait, a.sel.AddressTab); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Debug("address tab not found", "selector", a.sel.AddressTab, "error", err)
	}
	if err := a.fillAddress(ctx, p, addr); err != nil {
		return nil, err
	}

	if err := browser.Pause(ctx, a.delayMin, a.delayMax); err != nil {
		return nil, err
	}
	if err := p.Click(ctx, a.sel.Submit); err != nil {
		if err := p.Click(ctx, fallbackSubmit); err != nil {
			return nil, a.shapeError(ctx, p, "search button not found")
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.resultWait)
	defer cancel()
	if _, err := browser.WaitForAny(waitCtx, p, browser.DefaultPollInterval, a.sel.Cards, a.sel.NoResults); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Debug("people-search results did not settle", "error", err)
	}
	if err := challenge.Check(ctx, p).Err(); err != nil {
		return nil, err
	}

	doc, pageURL, err := readPage(ctx, p)
	if err != nil {
		return nil, err
	}
	candidates := parseCandidates(doc, a.sel)
	if len(candidates) == 0 {
		if doc.Find(a.sel.NoResults).Length() > 0 || htmlutil.ContainsAny(doc, "no results", "we could not find", "0 results") {
			return nil, fmt.Errorf("%w: no people listed at %s", model.ErrNotFound, addr.Street)
		}
		return nil, newShapeError(doc, pageURL, "results page has no person cards")
	}

	choice, ok := Select(ownerName, candidates, a.allowFallback)
	if !ok {
		return nil, fmt.Errorf("%w: no candidate matches %q", model.ErrNotFound, ownerName)
	}
	a.logger.Debug("people-search candidate selected",
		"candidates", len(candidates),
		"confidence", choice.Confidence,
		"fallback", choice.Fallback,
	)

	detailURL := htmlutil.Resolve(pageURL, choice.Candidate.Href)
	if err := a.navigate(ctx, p, detailURL); err != nil {
		return nil, err
	}
	detail, _, err := readPage(ctx, p)
	if err != nil {
		return nil, err
	}

	phones := extractPhones(detail, a.sel.PhoneSection)
	emails := extractEmails(detail, a.sel.EmailSection)
	if a.mx != nil {
		emails = a.mx.Filter(ctx, emails)
	}
	if len(phones) == 0 && len(emails) == 0 {
		return nil, fmt.Errorf("%w: detail page lists no phone or email", model.ErrNotFound)
	}

	return &model.ContactRecord{
		PhoneNumbers:      phones,
		Emails:            emails,
		MatchConfidence:   choice.Confidence,
		MatchedPersonName: choice.Candidate.Name,
		Fallback:          choice.Fallback,
		NeedsReview:       choice.Fallback || namematch.NeedsReview(choice.Confidence),
		SourceURL:         detailURL,
	}, nil
}

// fillAddress types the street and "CITY, ST ZIP" into the search form. When
// the configured inputs are missing, the first two visible text inputs are
// used instead.
func (a *PeopleSearchAdapter) fillAddress(ctx context.Context, p browser.Page, addr model.NormalizedAddress) error {
	cityStateZip := addr.CityStateZip()

	streetErr := browser.FillOptional(ctx, p, a.controlWait, a.sel.StreetInput, addr.Street)
	cszErr := browser.FillOptional(ctx, p, a.controlWait, a.sel.CityStateZipInput, cityStateZip)
	if streetErr == nil && cszErr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, _, err := readPage(ctx, p)
	if err != nil {
		return err
	}
	inputs := visibleInputs(doc)
	a.logger.Debug("using visible-input fallback", "inputs", len(inputs))

	if streetErr != nil {
		if len(inputs) == 0 {
			return a.shapeError(ctx, p, "no visible input for street")
		}
		if err := p.Fill(ctx, inputs[0], addr.Street); err != nil {
			return a.shapeError(ctx, p, "street input rejected")
		}
		inputs = inputs[1:]
	}
	if cszErr != nil {
		if len(inputs) == 0 {
			return a.shapeError(ctx, p, "no visible input for city/state/zip")
		}
		if err := p.Fill(ctx, inputs[0], cityStateZip); err != nil {
			return a.shapeError(ctx, p, "city/state/zip input rejected")
		}
	}
	return nil
}

// visibleInputs returns selectors for text inputs that are not hidden,
// disabled or styled invisible, in document order. Inputs without an id or
// name cannot be addressed and are skipped.
func visibleInputs(doc *goquery.Document) []string {
	var out []string
	doc.Find("input").Each(func(_ int, in *goquery.Selection) {
		typ := strings.ToLower(in.AttrOr("type", "text"))
		if typ != "text" && typ != "search" && typ != "" {
			return
		}
		if _, disabled := in.Attr("disabled"); disabled {
			return
		}
		if _, hidden := in.Attr("hidden"); hidden {
			return
		}
		style := strings.ReplaceAll(strings.ToLower(in.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return
		}
		if in.ParentsFiltered("[hidden], [style*='display:none'], [style*='display: none']").Length() > 0 {
			return
		}

		switch {
		case in.AttrOr("id", "") != "":
			out = append(out, "#"+in.AttrOr("id", ""))
		case in.AttrOr("name", "") != "":
			out = append(out, fmt.Sprintf("input[name='%s']", in.AttrOr("name", "")))
		}
	})
	return out
}

func readPage(ctx context.Context, p browser.Page) (*goquery.Document, string, error) {
	src, err := p.HTML(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read people-search page: %w", err)
	}
	doc, err := htmlutil.Parse(src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse people-search page: %w", err)
	}
	pageURL, _ := p.URL(ctx)
	return doc, pageURL, nil
}

func newShapeError(doc *goquery.Document, pageURL, detail string) *model.PageError {
	return &model.PageError{
		Kind:    model.ErrShape,
		URL:     pageURL,
		Title:   htmlutil.Title(doc),
		Classes: htmlutil.SampleClasses(doc, "div, section, a, form", 12),
		Detail:  detail,
	}
}

func (a *PeopleSearchAdapter) shapeError(ctx context.Context, p browser.Page, detail string) error {
	doc, pageURL, err := readPage(ctx, p)
	if err != nil {
		return &model.PageError{Kind: model.ErrShape, Detail: detail}
	}
	pe := newShapeError(doc, pageURL, detail)
	a.logger.Warn("people-search page shape not recognized", "url", pageURL, "title", pe.Title, "classes", pe.Classes)
	return pe
}
