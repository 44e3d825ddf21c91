package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/leadscan/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the summary and every lead.
	Write(report *model.RunReport) (int, error)

	// WriteSummary outputs only the per-stage counts.
	WriteSummary(summary *model.RunSummary) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers. It stops on the
// first error.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// stageRow is one line of the per-stage count table.
type stageRow struct {
	stage     string
	succeeded int
	failed    int
	note      string
}

func stageRows(s *model.RunSummary) []stageRow {
	return []stageRow{
		{"Acquired", s.Acquired, 0, s.Strategy},
		{"Geocoded", s.Geocoded, s.GeocodeFailed, ""},
		{"Owner resolved", s.OwnersResolved, s.OwnerFailed, fmt.Sprintf("%d not in assessor records", s.OwnerNotFound)},
		{"Contact resolved", s.ContactsResolved, s.ContactFailed, fmt.Sprintf("%d skipped without owner", s.SkippedNoOwner)},
	}
}

// leadColumns are the columns shared by the text and markdown lead tables.
var leadColumns = []string{"Document", "Sale Date", "Address", "Owner", "Phones", "Emails", "Match", "Status"}

func leadRow(l *model.EnrichedLead) []string {
	addr := l.Address.OneLine()
	if addr == "" {
		addr = l.Record.RawAddress
	}
	ownerName := "-"
	if l.Owner != nil {
		ownerName = l.Owner.OwnerName
	}
	phones, emails, match := "-", "-", "-"
	if l.Contact != nil {
		if len(l.Contact.PhoneNumbers) > 0 {
			phones = strings.Join(l.Contact.PhoneNumbers, ", ")
		}
		if len(l.Contact.Emails) > 0 {
			emails = strings.Join(l.Contact.Emails, ", ")
		}
		match = fmt.Sprintf("%.2f", l.Contact.MatchConfidence)
		if l.Contact.NeedsReview {
			match += " (review)"
		}
	}
	return []string{
		l.Record.DocumentNumber,
		orDash(l.Record.SaleDate),
		addr,
		ownerName,
		phones,
		emails,
		match,
		leadStatus(l),
	}
}

// leadStatus names the furthest stage reached and any failure kinds,
// e.g. "owner failed (not_found)".
func leadStatus(l *model.EnrichedLead) string {
	switch {
	case l.Reached(model.StateContactResolved):
		return "contact resolved"
	case l.Reached(model.StateSkippedNoOwner):
		if f, ok := l.FailureFor(model.StageOwner); ok {
			return "owner failed (" + f.Kind.String() + ")"
		}
		return "no owner"
	case l.Reached(model.StateContactFailed):
		if f, ok := l.FailureFor(model.StageContact); ok {
			return "contact failed (" + f.Kind.String() + ")"
		}
		return "contact failed"
	default:
		return strings.ToLower(l.State.String())
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
