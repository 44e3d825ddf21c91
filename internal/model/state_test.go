package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// TestStateString tests the string form of every state.
func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateAcquired, "ACQUIRED"},
		{StateAddressNormalized, "ADDRESS_NORMALIZED"},
		{StateGeocoded, "GEOCODED"},
		{StateGeocodeFailed, "GEOCODE_FAILED"},
		{StateOwnerResolved, "OWNER_RESOLVED"},
		{StateOwnerFailed, "OWNER_FAILED"},
		{StateContactResolved, "CONTACT_RESOLVED"},
		{StateContactFailed, "CONTACT_FAILED"},
		{StateSkippedNoOwner, "SKIPPED_NO_OWNER"},
		{StateDone, "DONE"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.state.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestStateJSON tests that states round-trip through their names.
func TestStateJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal([]State{StateOwnerResolved, StateDone})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["OWNER_RESOLVED","DONE"]` {
		t.Errorf("unexpected JSON %s", data)
	}

	var got []State
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[0] != StateOwnerResolved || got[1] != StateDone {
		t.Errorf("unexpected states %v", got)
	}

	var bad State
	if err := bad.UnmarshalText([]byte("NOPE")); err == nil {
		t.Error("expected error for unknown state")
	}
}

// TestClassifyError tests mapping of errors to failure kinds.
func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"not found", fmt.Errorf("assessor: %w", ErrNotFound), FailureNotFound},
		{"challenge", fmt.Errorf("people search: %w", ErrChallenged), FailureChallenge},
		{"shape", &PageError{Kind: ErrShape, Title: "Results"}, FailureShape},
		{"timeout sentinel", ErrTimeout, FailureTimeout},
		{"deadline", fmt.Errorf("navigate: %w", context.DeadlineExceeded), FailureTimeout},
		{"other", errors.New("connection refused"), FailureTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

// TestEnrichedLeadLifecycle tests transitions and failure recording.
func TestEnrichedLeadLifecycle(t *testing.T) {
	t.Parallel()

	lead := NewEnrichedLead(RawListingRecord{DocumentNumber: "20240012345"})
	if lead.State != StateAcquired {
		t.Fatalf("expected ACQUIRED, got %s", lead.State)
	}

	lead.Transition(StateAddressNormalized)
	lead.Fail(StageGeocode, StateGeocodeFailed, ErrNotFound)
	lead.Fail(StageOwner, StateOwnerFailed, &PageError{
		Kind:    ErrShape,
		Title:   "Search Results",
		Classes: []string{"grid-cell", "owner"},
	})
	lead.Transition(StateSkippedNoOwner)
	lead.Finish()
	lead.Finish()

	want := []State{
		StateAcquired, StateAddressNormalized, StateGeocodeFailed,
		StateOwnerFailed, StateSkippedNoOwner, StateDone,
	}
	if len(lead.History) != len(want) {
		t.Fatalf("history %v, want %v", lead.History, want)
	}
	for i := range want {
		if lead.History[i] != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, lead.History[i], want[i])
		}
	}

	f, ok := lead.FailureFor(StageOwner)
	if !ok {
		t.Fatal("expected owner failure")
	}
	if f.Kind != FailureShape {
		t.Errorf("expected shape failure, got %s", f.Kind)
	}
	if f.Diagnostics["title"] != "Search Results" {
		t.Errorf("expected title diagnostic, got %v", f.Diagnostics)
	}
	if f.Diagnostics["classes"] != "grid-cell owner" {
		t.Errorf("expected classes diagnostic, got %v", f.Diagnostics)
	}
	if lead.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}
}

// TestNormalizedAddressOneLine tests address rendering.
func TestNormalizedAddressOneLine(t *testing.T) {
	t.Parallel()

	a := NormalizedAddress{Street: "711 W NORWOOD CT", City: "SAN ANTONIO", State: "TX", Zip: "78212"}
	if got := a.OneLine(); got != "711 W NORWOOD CT, SAN ANTONIO, TX 78212" {
		t.Errorf("OneLine() = %q", got)
	}
	if got := a.CityStateZip(); got != "SAN ANTONIO, TX 78212" {
		t.Errorf("CityStateZip() = %q", got)
	}

	street := NormalizedAddress{Street: "123 MAIN ST", State: "TX"}
	if got := street.OneLine(); got != "123 MAIN ST, TX" {
		t.Errorf("OneLine() = %q", got)
	}
}
