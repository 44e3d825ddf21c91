package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/leadscan/internal/model"
)

// JSONWriter outputs reports in JSON format for downstream tooling.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is shorthand for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary and all leads.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	if report.Leads == nil {
		// Encode an empty run as [] rather than null.
		report = &model.RunReport{Summary: report.Summary, Leads: []*model.EnrichedLead{}}
	}
	return w.writeJSON(report)
}

// WriteSummary outputs only the per-stage counts.
func (w *JSONWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	return w.writeJSON(summary)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a run report with the version that produced it.
type JSONReport struct {
	Version string `json:"version"`

	// GeneratedAt is the run's finish time in RFC 3339.
	GeneratedAt string `json:"generated_at,omitempty"`

	Summary *model.RunSummary     `json:"summary"`
	Leads   []*model.EnrichedLead `json:"leads"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(report *model.RunReport, version string) *JSONReport {
	r := &JSONReport{
		Version: version,
		Summary: report.Summary,
		Leads:   report.Leads,
	}
	if r.Leads == nil {
		r.Leads = []*model.EnrichedLead{}
	}
	if report.Summary != nil && !report.Summary.FinishedAt.IsZero() {
		r.GeneratedAt = report.Summary.FinishedAt.UTC().Format(time.RFC3339)
	}
	return r
}

// FullJSONWriter outputs complete reports with a metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the full report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}
