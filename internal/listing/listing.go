// Package listing acquires recorded distressed-property notices from the
// county public-records portal.
//
// The portal is a JavaScript application whose embedded state changes shape
// without notice, so acquisition is an ordered list of strategies tried
// until one yields records. When every strategy comes back empty, the
// diagnostics of each attempt are returned so an operator can tell a blocked
// session from an empty date range from a portal redesign.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/leadscan/internal/challenge"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// MinDocumentNumberLength is the shortest document number accepted. Shorter
// values come from header or decoration rows.
const MinDocumentNumberLength = 5

// Query selects records by recorded date.
type Query struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Strategy is one way of reading the portal. Fetch returns the records it
// found along with a description of the page it looked at. A non-nil error
// means the page could not be loaded at all.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]model.RawListingRecord, model.PageDiagnostics, error)
}

// Result is the outcome of an acquisition. Success is true when records were
// found or when a strategy saw a genuinely empty result page.
type Result struct {
	Records     []model.RawListingRecord
	Success     bool
	Strategy    string
	Diagnostics []model.PageDiagnostics
}

// Acquirer runs strategies in order.
type Acquirer struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewAcquirer creates an Acquirer over the given strategies.
func NewAcquirer(logger *slog.Logger, strategies ...Strategy) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{strategies: strategies, logger: logger}
}

// Acquire tries each strategy until one returns records. It never returns
// an error: failures are described in Result.Diagnostics.
func (a *Acquirer) Acquire(ctx context.Context, q Query) Result {
	var res Result
	for _, s := range a.strategies {
		if ctx.Err() != nil {
			res.Diagnostics = append(res.Diagnostics, model.PageDiagnostics{
				Strategy: s.Name(),
				Verdict:  model.VerdictTransport,
				Error:    ctx.Err().Error(),
			})
			break
		}

		records, diag, err := a.fetch(ctx, s, q)
		diag.Strategy = s.Name()
		if err != nil {
			diag.Error = err.Error()
			if diag.Verdict == "" || diag.Verdict == model.VerdictOK {
				diag.Verdict = model.VerdictTransport
			}
		}
		res.Diagnostics = append(res.Diagnostics, diag)

		if len(records) > 0 {
			if q.Limit > 0 && len(records) > q.Limit {
				records = records[:q.Limit]
			}
			res.Records = records
			res.Success = true
			res.Strategy = s.Name()
			a.logger.Info("listing acquired", "strategy", s.Name(), "records", len(records), "source", diag.Source)
			return res
		}

		a.logger.Warn("listing strategy produced no records",
			"strategy", s.Name(),
			"verdict", diag.Verdict,
			"title", diag.Title,
			"rows", diag.RowCount,
			"scripts", diag.ScriptCount,
			"error", diag.Error,
		)
		if diag.Verdict == model.VerdictEmpty {
			res.Success = true
			res.Strategy = s.Name()
		}
	}
	return res
}

func (a *Acquirer) fetch(ctx context.Context, s Strategy, q Query) (records []model.RawListingRecord, diag model.PageDiagnostics, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Fetch(ctx, q)
}

// Column locates one field in a results-table row. Class is tried first;
// Position (1-based) is the fallback.
type Column struct {
	Class    string `yaml:"class"`
	Position int    `yaml:"position"`
}

// Columns maps record fields to table columns.
type Columns struct {
	DocumentNumber Column `yaml:"document_number"`
	RecordedDate   Column `yaml:"recorded_date"`
	SaleDate       Column `yaml:"sale_date"`
	Address        Column `yaml:"address"`
	DocType        Column `yaml:"doc_type"`
}

// Portal describes the county records search.
type Portal struct {
	SearchURL     string  `yaml:"search_url"`
	DocType       string  `yaml:"doc_type"`
	FromParam     string  `yaml:"from_param"`
	ToParam       string  `yaml:"to_param"`
	LimitParam    string  `yaml:"limit_param"`
	DocTypeParam  string  `yaml:"doc_type_param"`
	RowSelector   string  `yaml:"row_selector"`
	EmptySelector string  `yaml:"empty_selector"`
	Columns       Columns `yaml:"columns"`
}

// DefaultPortal returns the portal layout used when the config leaves a
// field empty.
func DefaultPortal() Portal {
	return Portal{
		DocType:       "NOTICE OF FORECLOSURE",
		FromParam:     "recordedDateFrom",
		ToParam:       "recordedDateTo",
		LimitParam:    "limit",
		DocTypeParam:  "docType",
		RowSelector:   "table tbody tr",
		EmptySelector: ".no-results, .empty-state, .no-records",
		Columns: Columns{
			DocumentNumber: Column{Class: "col-doc-number", Position: 1},
			RecordedDate:   Column{Class: "col-recorded-date", Position: 2},
			SaleDate:       Column{Class: "col-sale-date", Position: 3},
			Address:        Column{Class: "col-address", Position: 4},
			DocType:        Column{Class: "col-doc-type", Position: 5},
		},
	}
}

// withDefaults fills empty fields of p from DefaultPortal.
func withDefaults(p Portal) Portal {
	_ = mergo.Merge(&p, DefaultPortal()) //nolint:errcheck // both operands are the same struct type
	return p
}

// params renders the query as portal request parameters.
func (p Portal) params(q Query) map[string]string {
	out := map[string]string{}
	if !q.From.IsZero() {
		out[p.FromParam] = q.From.Format("01/02/2006")
	}
	if !q.To.IsZero() {
		out[p.ToParam] = q.To.Format("01/02/2006")
	}
	if q.Limit > 0 {
		out[p.LimitParam] = fmt.Sprint(q.Limit)
	}
	if p.DocType != "" {
		out[p.DocTypeParam] = p.DocType
	}
	return out
}

// NormalizeDate converts portal dates ("M/D/YYYY", optionally followed by a
// time) to ISO "YYYY-MM-DD". ISO input is truncated to the date. Anything
// else is returned trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	head := strings.Fields(s)[0]
	if t, err := time.Parse("1/2/2006", head); err == nil {
		return t.Format(time.DateOnly)
	}
	if len(s) >= 10 {
		if t, err := time.Parse(time.DateOnly, s[:10]); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return s
}

// newRecord builds a record from extracted field text. It returns false for
// rows whose document number is too short to be real.
func newRecord(docNumber, recorded, sale, rawAddress, docType string) (model.RawListingRecord, bool) {
	docNumber = htmlutil.CleanText(docNumber)
	if len(docNumber) < MinDocumentNumberLength {
		return model.RawListingRecord{}, false
	}
	return model.RawListingRecord{
		DocumentNumber: docNumber,
		RecordedDate:   NormalizeDate(recorded),
		SaleDate:       NormalizeDate(sale),
		RawAddress:     strings.TrimSpace(rawAddress),
		DocType:        htmlutil.CleanText(docType),
	}, true
}

// parseTable reads records from results-table rows. It returns the records
// and the number of rows the row selector matched.
func parseTable(doc *goquery.Document, p Portal) ([]model.RawListingRecord, int) {
	rows := doc.Find(p.RowSelector)
	var out []model.RawListingRecord
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		rec, ok := newRecord(
			cellText(row, cells, p.Columns.DocumentNumber),
			cellText(row, cells, p.Columns.RecordedDate),
			cellText(row, cells, p.Columns.SaleDate),
			cellText(row, cells, p.Columns.Address),
			cellText(row, cells, p.Columns.DocType),
		)
		if ok {
			out = append(out, rec)
		}
	})
	return out, rows.Length()
}

func cellText(row, cells *goquery.Selection, c Column) string {
	if c.Class != "" {
		if cell := row.Find("td." + c.Class).First(); cell.Length() > 0 {
			return htmlutil.Words(cell)
		}
	}
	if c.Position > 0 && c.Position <= cells.Length() {
		return htmlutil.Words(cells.Eq(c.Position - 1))
	}
	return ""
}

var (
	signInTitles     = []string{"sign in", "log in", "login", "sign-in"}
	signInPhrases    = []string{"sign in", "log in", "login required", "please login"}
	noResultsPhrases = []string{"no results", "no records found", "no matching records", "0 results", "returned no records"}
)

// loginWall reports a page that is itself a login: a sign-in title or a
// password form. A "Sign In" link in a site header is not one.
func loginWall(doc *goquery.Document, title string) bool {
	lower := strings.ToLower(title)
	for _, m := range signInTitles {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return doc.Find("input[type='password']").Length() > 0
}

// diagnose describes a parsed page and derives its verdict.
func diagnose(doc *goquery.Document, src string, p Portal, records int) model.PageDiagnostics {
	title := htmlutil.Title(doc)
	wall := loginWall(doc, title)
	d := model.PageDiagnostics{
		Title:         title,
		SignInPresent: wall || htmlutil.ContainsAny(doc, signInPhrases...),
		NoResults:     htmlutil.ContainsAny(doc, noResultsPhrases...) || doc.Find(p.EmptySelector).Length() > 0,
		ScriptCount:   doc.Find("script").Length(),
		RowCount:      doc.Find(p.RowSelector).Length(),
		RecordCount:   records,
	}
	d.Verdict = verdictFor(d, wall, challenge.Detect(title, src))
	return d
}

// verdictFor ranks the evidence. An explicit empty-results marker outweighs
// sign-in text in the page body, but not a login page or a challenge.
func verdictFor(d model.PageDiagnostics, wall bool, ch challenge.Result) model.Verdict {
	switch {
	case d.RecordCount > 0:
		return model.VerdictOK
	case ch.Outcome == challenge.OutcomeChallenged, wall:
		return model.VerdictBlocked
	case d.NoResults:
		return model.VerdictEmpty
	case d.SignInPresent:
		return model.VerdictBlocked
	default:
		return model.VerdictMarkupChanged
	}
}
