package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nao1215/leadscan/internal/model"
)

// TextWriter renders reports as terminal tables.
type TextWriter struct {
	baseWriter

	// maxAddress caps the address column width; 0 disables truncation.
	maxAddress int
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{baseWriter: newBaseWriter(output), maxAddress: 48}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// Write outputs the stage table followed by one row per lead.
func (w *TextWriter) Write(report *model.RunReport) (int, error) {
	summary := report.Summary
	if summary == nil {
		summary = model.NewRunSummary(report.Leads)
	}

	var b strings.Builder
	b.WriteString(w.renderSummary(summary))
	b.WriteString("\n")

	if len(report.Leads) == 0 {
		b.WriteString("No leads.\n")
		return io.WriteString(w.output, b.String())
	}

	t := newTable()
	header := make(table.Row, len(leadColumns))
	for i, c := range leadColumns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, l := range report.Leads {
		if l == nil {
			continue
		}
		cols := leadRow(l)
		if w.maxAddress > 0 {
			cols[2] = truncateString(cols[2], w.maxAddress)
		}
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[i] = c
		}
		t.AppendRow(row)
	}
	b.WriteString(t.Render())
	b.WriteString("\n")
	return io.WriteString(w.output, b.String())
}

// WriteSummary outputs the stage table and the headline line.
func (w *TextWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	return io.WriteString(w.output, w.renderSummary(summary))
}

func (w *TextWriter) renderSummary(s *model.RunSummary) string {
	t := newTable()
	t.SetTitle("Run summary")
	t.AppendHeader(table.Row{"Stage", "Succeeded", "Failed", "Note"})
	for _, r := range stageRows(s) {
		t.AppendRow(table.Row{r.stage, r.succeeded, r.failed, r.note})
	}
	t.AppendFooter(table.Row{"Done", s.Done, "", fmt.Sprintf("%d need review, %d challenged", s.NeedsReview, s.Challenged)})

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	for _, d := range s.Diagnostics {
		fmt.Fprintf(&b, "%s: %s", d.Strategy, d.Verdict)
		if d.Error != "" {
			fmt.Fprintf(&b, " (%s)", d.Error)
		}
		b.WriteString("\n")
	}
	b.WriteString(s.String())
	b.WriteString("\n")
	return b.String()
}
