package model

import (
	"fmt"
	"time"
)

// Verdict is the acquirer's reading of a page that produced no records.
type Verdict string

const (
	VerdictOK            Verdict = "ok"
	VerdictBlocked       Verdict = "blocked"
	VerdictEmpty         Verdict = "empty"
	VerdictMarkupChanged Verdict = "markup_changed"
	VerdictTransport     Verdict = "transport_error"
)

// PageDiagnostics describes the page a listing strategy looked at. It lets an
// operator tell a blocked session from a genuinely empty result set from a
// portal redesign.
type PageDiagnostics struct {
	Strategy      string  `json:"strategy"`
	URL           string  `json:"url,omitempty"`
	Title         string  `json:"title"`
	SignInPresent bool    `json:"sign_in_present"`
	NoResults     bool    `json:"no_results_present"`
	ScriptCount   int     `json:"script_count"`
	RowCount      int     `json:"row_count"`
	RecordCount   int     `json:"record_count"`
	Source        string  `json:"source,omitempty"`
	Verdict       Verdict `json:"verdict"`
	Error         string  `json:"error,omitempty"`
}

// RunSummary reports per-stage counts for one run.
type RunSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Strategy is the listing strategy that produced the records.
	Strategy string `json:"strategy,omitempty"`

	Acquired         int `json:"acquired"`
	Normalized       int `json:"normalized"`
	Geocoded         int `json:"geocoded"`
	GeocodeFailed    int `json:"geocode_failed"`
	OwnersResolved   int `json:"owners_resolved"`
	OwnerFailed      int `json:"owner_failed"`
	OwnerNotFound    int `json:"owner_not_found"`
	ContactsResolved int `json:"contacts_resolved"`
	ContactFailed    int `json:"contact_failed"`
	SkippedNoOwner   int `json:"skipped_no_owner"`
	Challenged       int `json:"challenged"`
	NeedsReview      int `json:"needs_review"`
	Done             int `json:"done"`

	Diagnostics []PageDiagnostics `json:"diagnostics,omitempty"`
}

// NewRunSummary counts the states reached by each lead.
func NewRunSummary(leads []*EnrichedLead) *RunSummary {
	s := &RunSummary{}
	for _, l := range leads {
		if l == nil {
			continue
		}
		s.Acquired++
		if l.Reached(StateAddressNormalized) {
			s.Normalized++
		}
		switch {
		case l.Reached(StateGeocoded):
			s.Geocoded++
		case l.Reached(StateGeocodeFailed):
			s.GeocodeFailed++
		}
		switch {
		case l.Reached(StateOwnerResolved):
			s.OwnersResolved++
		case l.Reached(StateOwnerFailed):
			s.OwnerFailed++
			if f, ok := l.FailureFor(StageOwner); ok && f.Kind == FailureNotFound {
				s.OwnerNotFound++
			}
		}
		switch {
		case l.Reached(StateContactResolved):
			s.ContactsResolved++
		case l.Reached(StateContactFailed):
			s.ContactFailed++
		case l.Reached(StateSkippedNoOwner):
			s.SkippedNoOwner++
		}
		for _, f := range l.Failures {
			if f.Kind == FailureChallenge {
				s.Challenged++
				break
			}
		}
		if l.Contact != nil && l.Contact.NeedsReview {
			s.NeedsReview++
		}
		if l.State == StateDone {
			s.Done++
		}
	}
	return s
}

// String renders the headline counts, e.g.
// "250 acquired, 210 geocoded, 180 owners resolved, 95 contacts resolved".
func (s *RunSummary) String() string {
	return fmt.Sprintf("%d acquired, %d geocoded, %d owners resolved, %d contacts resolved",
		s.Acquired, s.Geocoded, s.OwnersResolved, s.ContactsResolved)
}

// Elapsed returns the wall-clock duration of the run.
func (s *RunSummary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunReport is everything a run produced, ready to be written out.
type RunReport struct {
	Summary *RunSummary     `json:"summary"`
	Leads   []*EnrichedLead `json:"leads"`
}
