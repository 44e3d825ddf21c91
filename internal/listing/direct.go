package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// ErrNoSearchURL is returned when the portal search URL is not configured.
var ErrNoSearchURL = errors.New("portal search URL is not configured")

// DirectStrategy fetches the portal over plain HTTP and mines the response:
// a JSON body first, then state embedded in inline scripts, then the
// rendered results table.
type DirectStrategy struct {
	client *resty.Client
	portal Portal
}

// NewDirectStrategy creates a DirectStrategy. Empty portal fields take
// their DefaultPortal values.
func NewDirectStrategy(client *resty.Client, portal Portal) *DirectStrategy {
	return &DirectStrategy{client: client, portal: withDefaults(portal)}
}

// Name implements Strategy.
func (s *DirectStrategy) Name() string { return "direct" }

// Fetch implements Strategy.
func (s *DirectStrategy) Fetch(ctx context.Context, q Query) ([]model.RawListingRecord, model.PageDiagnostics, error) {
	diag := model.PageDiagnostics{URL: s.portal.SearchURL}
	if s.portal.SearchURL == "" {
		return nil, diag, ErrNoSearchURL
	}
	params := s.portal.params(q)

	// Content negotiation: some portal builds answer the search route with
	// JSON when asked.
	if records, ok := s.fetchJSON(ctx, params); ok {
		diag.Source = "json"
		diag.RecordCount = len(records)
		diag.Verdict = model.VerdictOK
		return records, diag, nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetQueryParams(params).
		Get(s.portal.SearchURL)
	if err != nil {
		return nil, diag, fmt.Errorf("failed to fetch portal: %w", err)
	}
	if resp.IsError() {
		diag.Verdict = model.VerdictTransport
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 || resp.StatusCode() == 429 {
			diag.Verdict = model.VerdictBlocked
		}
		return nil, diag, fmt.Errorf("portal returned %s", resp.Status())
	}

	src := resp.String()
	doc, err := htmlutil.Parse(src)
	if err != nil {
		return nil, diag, fmt.Errorf("failed to parse portal page: %w", err)
	}

	records, source := mineScripts(doc)
	if len(records) == 0 {
		records, _ = parseTable(doc, s.portal)
		source = "table"
	}

	d := diagnose(doc, src, s.portal, len(records))
	d.URL = diag.URL
	if len(records) > 0 {
		d.Source = source
	}
	return records, d, nil
}

// fetchJSON asks for JSON and reports whether a record array was found.
func (s *DirectStrategy) fetchJSON(ctx context.Context, params map[string]string) ([]model.RawListingRecord, bool) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(s.portal.SearchURL)
	if err != nil || resp.IsError() {
		return nil, false
	}

	body := strings.TrimSpace(resp.String())
	if !strings.Contains(resp.Header().Get("Content-Type"), "json") &&
		!strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
		return nil, false
	}

	v, err := decodeLenient(body)
	if err != nil {
		return nil, false
	}
	objs := findRecordArray(v, 0)
	if objs == nil {
		return nil, false
	}
	records := recordsFromObjects(objs)
	return records, len(records) > 0
}
