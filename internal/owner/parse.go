package owner

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// sampleClassLimit caps the class names reported in shape errors.
const sampleClassLimit = 12

// ownerLabels are normalized label texts that precede the owner cell on
// detail pages.
var ownerLabels = map[string]bool{
	"OWNER":                    true,
	"OWNER NAME":               true,
	"OWNER(S)":                 true,
	"OWNERS":                   true,
	"OWNER OF RECORD":          true,
	"OWNER INFORMATION":        true,
	"NAME AND MAILING ADDRESS": true,
}

var noMatchPhrases = []string{"no properties found", "no records found", "no results found", "0 records found", "no matching properties"}

// results is what a result page was recognized as. At most one field is set.
type results struct {
	owner      *model.OwnerRecord
	detailHref string
	notFound   bool
}

// parseResults recognizes the three result layouts: an owner cell in the
// results table (primary or alternate markup), a link to a detail page, or
// an explicit no-match indicator.
func parseResults(doc *goquery.Document, sel Selectors) results {
	if owner := ownerFromCell(doc.Find(sel.OwnerCell).First()); owner != nil {
		return results{owner: owner}
	}
	if owner := ownerFromCell(doc.Find(sel.OwnerCellFallback).First()); owner != nil {
		return results{owner: owner}
	}
	if href, ok := doc.Find(sel.DetailLink).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return results{detailHref: strings.TrimSpace(href)}
	}
	if doc.Find(sel.NoMatch).Length() > 0 || htmlutil.ContainsAny(doc, noMatchPhrases...) {
		return results{notFound: true}
	}
	return results{}
}

// parseDetail reads the owner from a property detail page: the owner cell
// selectors first, then any row labeled "Owner".
func parseDetail(doc *goquery.Document, sel Selectors) *model.OwnerRecord {
	if owner := ownerFromCell(doc.Find(sel.OwnerCell).First()); owner != nil {
		return owner
	}
	if owner := ownerFromCell(doc.Find(sel.OwnerCellFallback).First()); owner != nil {
		return owner
	}
	return ownerFromLabelRows(doc, sel.LabelRows)
}

// ownerFromCell splits a multi-line owner cell: the first line is the name,
// the remaining lines are the mailing address.
func ownerFromCell(cell *goquery.Selection) *model.OwnerRecord {
	if cell.Length() == 0 {
		return nil
	}
	lines := htmlutil.Lines(cell)
	if len(lines) == 0 {
		return nil
	}
	return &model.OwnerRecord{
		OwnerName:      strings.ToUpper(lines[0]),
		MailingAddress: strings.ToUpper(strings.Join(lines[1:], ", ")),
	}
}

func ownerFromLabelRows(doc *goquery.Document, rowSelector string) *model.OwnerRecord {
	var owner *model.OwnerRecord
	doc.Find(rowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Children().Filter("th, td")
		if cells.Length() < 2 {
			return true
		}
		label := strings.ToUpper(strings.TrimSuffix(htmlutil.CleanText(cells.First().Text()), ":"))
		if !ownerLabels[label] {
			return true
		}
		owner = ownerFromCell(cells.Eq(1))
		return owner == nil
	})
	return owner
}

func readPage(ctx context.Context, p browser.Page) (*goquery.Document, string, error) {
	src, err := p.HTML(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read assessor page: %w", err)
	}
	doc, err := htmlutil.Parse(src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse assessor page: %w", err)
	}
	pageURL, _ := p.URL(ctx)
	return doc, pageURL, nil
}

// newShapeError describes an unrecognized page so the adapter can be fixed
// without reproducing the failure.
func newShapeError(doc *goquery.Document, pageURL, detail string) *model.PageError {
	return &model.PageError{
		Kind:    model.ErrShape,
		URL:     pageURL,
		Title:   htmlutil.Title(doc),
		Classes: htmlutil.SampleClasses(doc, "td, th, div, table", sampleClassLimit),
		Detail:  detail,
	}
}
