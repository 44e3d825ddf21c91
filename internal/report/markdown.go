package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs run reports in Markdown for sharing with the
// people who will work the leads.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summary
	if summary == nil {
		summary = model.NewRunSummary(report.Leads)
	}

	w.writeHeader(md, summary)
	w.writeStages(md, summary)
	w.writeDiagnostics(md, summary)
	w.writeLeads(md, report.Leads)
	w.writeFailures(md, report.Leads)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs the header and stage counts only.
func (w *MarkdownWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeHeader(md, summary)
	w.writeStages(md, summary)
	w.writeDiagnostics(md, summary)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.RunSummary) {
	md.H1("Leadscan Run Report")
	md.PlainText("")

	started := "-"
	if !s.StartedAt.IsZero() {
		started = s.StartedAt.Format("2006-01-02 15:04:05 MST")
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run Date", started},
			{"Strategy", orDash(s.Strategy)},
			{"Elapsed", s.Elapsed().Round(time.Second).String()},
			{"Status", statusText(s)},
		},
	})
	md.PlainText("")
}

func statusText(s *model.RunSummary) string {
	switch {
	case s.Acquired == 0 && len(s.Diagnostics) > 0:
		return "❌ Acquisition failed"
	case s.Done < s.Acquired:
		return "⚠️ Interrupted (partial results)"
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeStages(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Stage Summary")
	md.PlainText("")

	rows := make([][]string, 0, 4)
	for _, r := range stageRows(s) {
		rows = append(rows, []string{r.stage, strconv.Itoa(r.succeeded), strconv.Itoa(r.failed), orDash(r.note)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Stage", "Succeeded", "Failed", "Note"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.ContactsResolved+s.ContactFailed+s.SkippedNoOwner > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of contact outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Contact Outcomes"),
		piechart.WithShowData(true),
	)
	if s.ContactsResolved > 0 {
		chart.LabelAndIntValue("Resolved", uint64(s.ContactsResolved))
	}
	if s.ContactFailed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.ContactFailed))
	}
	if s.SkippedNoOwner > 0 {
		chart.LabelAndIntValue("No owner", uint64(s.SkippedNoOwner))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.RunSummary) {
	switch {
	case s.Challenged > 0:
		md.Cautionf(
			"%d lead(s) hit a bot challenge. The session may be flagged; slow down or rotate the proxy before the next run.",
			s.Challenged,
		)
	case s.Acquired == 0 && len(s.Diagnostics) > 0:
		md.Warning("No listing strategy returned records. See the diagnostics below.")
	case s.NeedsReview > 0:
		md.Importantf("%d contact match(es) are low confidence and need manual review.", s.NeedsReview)
	case s.Acquired == 0:
		md.Note("The portal returned no notices for this range.")
	default:
		md.Tip(s.String())
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeDiagnostics(md *markdown.Markdown, s *model.RunSummary) {
	if len(s.Diagnostics) == 0 {
		return
	}
	md.H2("Acquisition Diagnostics")
	md.PlainText("")

	rows := make([][]string, len(s.Diagnostics))
	for i, d := range s.Diagnostics {
		rows[i] = []string{
			d.Strategy,
			string(d.Verdict),
			truncateString(orDash(d.Title), 40),
			strconv.FormatBool(d.SignInPresent),
			strconv.Itoa(d.RowCount),
			strconv.Itoa(d.RecordCount),
			truncateString(orDash(d.Error), 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Strategy", "Verdict", "Title", "Sign-in", "Rows", "Records", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeLeads(md *markdown.Markdown, leads []*model.EnrichedLead) {
	md.H2("Leads")
	md.PlainText("")

	if len(leads) == 0 {
		md.PlainText("No leads in this run.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		if l == nil {
			continue
		}
		row := leadRow(l)
		row[2] = truncateString(row[2], 50)
		rows = append(rows, row)
	}
	md.Table(markdown.TableSet{
		Header: leadColumns,
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures lists stage failures per lead in collapsible blocks.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, leads []*model.EnrichedLead) {
	var failed []*model.EnrichedLead
	for _, l := range leads {
		if l != nil && len(l.Failures) > 0 {
			failed = append(failed, l)
		}
	}
	if len(failed) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")
	for _, l := range failed {
		var b strings.Builder
		for _, f := range l.Failures {
			fmt.Fprintf(&b, "- %s (%s): %s\n", f.Stage, f.Kind, f.Message)
			if title := f.Diagnostics["title"]; title != "" {
				fmt.Fprintf(&b, "  - page title: %s\n", title)
			}
			if u := f.Diagnostics["url"]; u != "" {
				fmt.Fprintf(&b, "  - url: %s\n", u)
			}
		}
		md.Details(l.Record.DocumentNumber, b.String())
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [leadscan](https://github.com/nao1215/leadscan)*")
}
