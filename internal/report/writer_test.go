package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/leadscan/internal/model"
)

// createTestReport builds a run with one fully enriched lead, one lead
// whose owner lookup failed and one lead held back for review.
func createTestReport() *model.RunReport {
	full := model.NewEnrichedLead(model.RawListingRecord{
		DocumentNumber: "20240012345",
		SaleDate:       "2024-03-05",
		RawAddress:     "711 W NORWOOD CT SAN ANTONIO, TEXAS 78212",
	})
	full.Address = model.NormalizedAddress{Street: "711 W NORWOOD CT", City: "SAN ANTONIO", State: "TX", Zip: "78212"}
	full.Transition(model.StateAddressNormalized)
	full.Geocode = &model.GeocodeResult{ID: "20240012345", Latitude: 29.46, Longitude: -98.5, Source: "census"}
	full.Transition(model.StateGeocoded)
	full.Owner = &model.OwnerRecord{OwnerName: "LOPEZ MARIA G"}
	full.Transition(model.StateOwnerResolved)
	full.Contact = &model.ContactRecord{
		PhoneNumbers:      []string{"(210) 555-0100"},
		Emails:            []string{"maria@example.com"},
		MatchConfidence:   1,
		MatchedPersonName: "MARIA G LOPEZ",
	}
	full.Transition(model.StateContactResolved)
	full.Finish()

	noOwner := model.NewEnrichedLead(model.RawListingRecord{
		DocumentNumber: "20240012346",
		RawAddress:     "1 MAIN ST SAN ANTONIO TX 78205",
	})
	noOwner.Address = model.NormalizedAddress{Street: "1 MAIN ST", City: "SAN ANTONIO", State: "TX", Zip: "78205"}
	noOwner.Transition(model.StateAddressNormalized)
	noOwner.Fail(model.StageGeocode, model.StateGeocodeFailed, model.ErrNotFound)
	noOwner.Fail(model.StageOwner, model.StateOwnerFailed, &model.PageError{
		Kind:  model.ErrChallenged,
		URL:   "https://bexar.test/search",
		Title: "Just a moment...",
	})
	noOwner.Transition(model.StateSkippedNoOwner)
	noOwner.Finish()

	review := model.NewEnrichedLead(model.RawListingRecord{
		DocumentNumber: "20240012347",
		SaleDate:       "2024-04-02",
		RawAddress:     "9 ELM ST SAN ANTONIO TX 78201",
	})
	review.Address = model.NormalizedAddress{Street: "9 ELM ST", City: "SAN ANTONIO", State: "TX", Zip: "78201"}
	review.Transition(model.StateAddressNormalized)
	review.Owner = &model.OwnerRecord{OwnerName: "SMITH JOHN"}
	review.Transition(model.StateOwnerResolved)
	review.Contact = &model.ContactRecord{
		PhoneNumbers:    []string{"(210) 555-0111"},
		MatchConfidence: 0.5,
		Fallback:        true,
		NeedsReview:     true,
	}
	review.Transition(model.StateContactResolved)
	review.Finish()

	leads := []*model.EnrichedLead{full, noOwner, review}
	summary := model.NewRunSummary(leads)
	summary.StartedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	summary.FinishedAt = summary.StartedAt.Add(95 * time.Second)
	summary.Strategy = "direct"
	return &model.RunReport{Summary: summary, Leads: leads}
}

func failedAcquisition() *model.RunReport {
	summary := model.NewRunSummary(nil)
	summary.Diagnostics = []model.PageDiagnostics{
		{Strategy: "direct", Title: "Sign In", SignInPresent: true, Verdict: model.VerdictBlocked},
		{Strategy: "browser", Verdict: model.VerdictTransport, Error: "navigation timeout"},
	}
	return &model.RunReport{Summary: summary}
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes stage table and leads", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewTextWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("returned %d bytes, wrote %d", n, buf.Len())
		}

		out := buf.String()
		for _, want := range []string{
			"Run summary",
			"Owner resolved",
			"20240012345",
			"LOPEZ MARIA G",
			"(210) 555-0100",
			"0.50 (review)",
			"owner failed (challenge)",
			"3 acquired, 1 geocoded, 2 owners resolved, 2 contacts resolved",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("empty run", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).Write(&model.RunReport{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No leads.") {
			t.Errorf("expected empty marker: %s", buf.String())
		}
	})

	t.Run("summary lists diagnostics", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).WriteSummary(failedAcquisition().Summary); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "direct: blocked") {
			t.Errorf("missing direct verdict: %s", out)
		}
		if !strings.Contains(out, "browser: transport_error (navigation timeout)") {
			t.Errorf("missing browser verdict: %s", out)
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("expected single line output, got %q", buf.String())
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"summary\"") {
			t.Errorf("expected indented output: %s", buf.String())
		}
	})

	t.Run("round trips leads", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got model.RunReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got.Leads) != 3 {
			t.Fatalf("got %d leads, want 3", len(got.Leads))
		}
		if got.Leads[0].State != model.StateDone {
			t.Errorf("state = %v, want DONE", got.Leads[0].State)
		}
		f, ok := got.Leads[1].FailureFor(model.StageOwner)
		if !ok || f.Kind != model.FailureChallenge {
			t.Errorf("owner failure = %+v, want challenge", f)
		}
		if diff := cmp.Diff([]string{"(210) 555-0100"}, got.Leads[0].Contact.PhoneNumbers); diff != "" {
			t.Errorf("phones mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty run encodes leads as array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(failedAcquisition()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"leads":[]`) {
			t.Errorf("expected empty leads array: %s", buf.String())
		}
	})

	t.Run("summary only", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteSummary(createTestReport().Summary); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got model.RunSummary
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.ContactsResolved != 2 || got.NeedsReview != 1 || got.Challenged != 1 {
			t.Errorf("unexpected summary: %+v", got)
		}
	})
}

func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewFullJSONWriter(&buf, "1.2.3", WithIndent("", "\t")).Write(createTestReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got JSONReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Version != "1.2.3" {
		t.Errorf("version = %q", got.Version)
	}
	if got.GeneratedAt != "2024-03-01T09:01:35Z" {
		t.Errorf("generated_at = %q", got.GeneratedAt)
	}
	if got.Summary == nil || got.Summary.Acquired != 3 {
		t.Errorf("summary = %+v", got.Summary)
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("full report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero length")
		}

		out := buf.String()
		for _, want := range []string{
			"# Leadscan Run Report",
			"## Stage Summary",
			"```mermaid",
			"Contact Outcomes",
			"[!CAUTION]",
			"## Leads",
			"711 W NORWOOD CT, SAN ANTONIO, TX 78212",
			"## Failures",
			"Just a moment...",
			"1m35s",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("markdown missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("acquisition failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(failedAcquisition()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Acquisition failed", "[!WARNING]", "## Acquisition Diagnostics", "navigation timeout", "No leads in this run."} {
			if !strings.Contains(out, want) {
				t.Errorf("markdown missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "mermaid") {
			t.Error("no chart expected without contact outcomes")
		}
	})

	t.Run("review alert", func(t *testing.T) {
		t.Parallel()

		r := createTestReport()
		r.Summary.Challenged = 0

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteSummary(r.Summary); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!IMPORTANT]") {
			t.Errorf("expected important alert: %s", buf.String())
		}
	})
}

type errWriter struct{}

func (errWriter) Write(*model.RunReport) (int, error)         { return 0, errors.New("disk full") }
func (errWriter) WriteSummary(*model.RunSummary) (int, error) { return 0, errors.New("disk full") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		mw := NewMultiWriter(NewTextWriter(&text), NewJSONWriter(&js))
		n, err := mw.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("total = %d, want %d", n, text.Len()+js.Len())
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		mw := NewMultiWriter(errWriter{}, NewJSONWriter(&after))
		if _, err := mw.WriteSummary(createTestReport().Summary); err == nil {
			t.Fatal("expected error")
		}
		if after.Len() != 0 {
			t.Error("writer after the failure should not run")
		}
	})
}

func TestLeadStatus(t *testing.T) {
	t.Parallel()

	r := createTestReport()
	want := []string{"contact resolved", "owner failed (challenge)", "contact resolved"}
	for i, l := range r.Leads {
		if got := leadStatus(l); got != want[i] {
			t.Errorf("lead %d: got %q, want %q", i, got, want[i])
		}
	}

	partial := model.NewEnrichedLead(model.RawListingRecord{DocumentNumber: "1"})
	partial.Transition(model.StateAddressNormalized)
	if got := leadStatus(partial); got != "address_normalized" {
		t.Errorf("partial: got %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long string", 10, "this is..."},
		{"abc", 2, "ab"},
		{"ÑANDÚ CT SAN ANTONIO", 8, "ÑANDÚ..."},
	}

	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
