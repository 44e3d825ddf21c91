package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nao1215/leadscan/internal/model"
)

type ownerFunc func(ctx context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error)

func (f ownerFunc) LocateOwner(ctx context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error) {
	return f(ctx, addr)
}

type contactFunc func(ctx context.Context, name string, addr model.NormalizedAddress) (*model.ContactRecord, error)

func (f contactFunc) LocateContacts(ctx context.Context, name string, addr model.NormalizedAddress) (*model.ContactRecord, error) {
	return f(ctx, name, addr)
}

func TestNormalizeStep(t *testing.T) {
	t.Parallel()

	lead := newLead()
	if err := NewNormalizeStep().Do(context.Background(), lead); err != nil {
		t.Fatal(err)
	}

	want := model.NormalizedAddress{
		Street: "123 MAIN ST",
		City:   "SAN ANTONIO",
		State:  "TX",
		Zip:    "78201",
		Raw:    "123 MAIN ST, SAN ANTONIO, TX 78201",
	}
	if diff := cmp.Diff(want, lead.Address); diff != "" {
		t.Errorf("address mismatch (-want +got):\n%s", diff)
	}
	if lead.State != model.StateAddressNormalized {
		t.Errorf("state = %v", lead.State)
	}
}

func TestGeocodeStep(t *testing.T) {
	t.Parallel()

	results := map[string]model.GeocodeResult{
		"20240012345": {ID: "20240012345", Latitude: 29.456, Longitude: -98.123, Source: "census"},
	}
	step := NewGeocodeStep(results)

	t.Run("attaches match", func(t *testing.T) {
		t.Parallel()

		lead := newLead()
		if err := step.Do(context.Background(), lead); err != nil {
			t.Fatal(err)
		}
		if lead.Geocode == nil || lead.Geocode.Latitude != 29.456 {
			t.Fatalf("geocode = %+v", lead.Geocode)
		}
		if lead.State != model.StateGeocoded {
			t.Errorf("state = %v", lead.State)
		}
	})

	t.Run("records not found", func(t *testing.T) {
		t.Parallel()

		lead := model.NewEnrichedLead(model.RawListingRecord{DocumentNumber: "20249999999"})
		if err := step.Do(context.Background(), lead); err != nil {
			t.Fatal(err)
		}
		if lead.Geocode != nil {
			t.Error("expected no geocode")
		}
		if lead.State != model.StateGeocodeFailed {
			t.Errorf("state = %v", lead.State)
		}
		f, ok := lead.FailureFor(model.StageGeocode)
		if !ok || f.Kind != model.FailureNotFound {
			t.Errorf("failure = %+v, %v", f, ok)
		}
	})
}

func TestOwnerStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		locate   ownerFunc
		wantOK   bool
		wantKind model.FailureKind
	}{
		{
			name: "resolved",
			locate: func(context.Context, model.NormalizedAddress) (*model.OwnerRecord, error) {
				return &model.OwnerRecord{OwnerName: "LOPEZ MARIA G"}, nil
			},
			wantOK: true,
		},
		{
			name: "not in assessor system",
			locate: func(context.Context, model.NormalizedAddress) (*model.OwnerRecord, error) {
				return nil, fmt.Errorf("assessor: %w", model.ErrNotFound)
			},
			wantKind: model.FailureNotFound,
		},
		{
			name: "empty owner name",
			locate: func(context.Context, model.NormalizedAddress) (*model.OwnerRecord, error) {
				return &model.OwnerRecord{}, nil
			},
			wantKind: model.FailureNotFound,
		},
		{
			name: "markup changed",
			locate: func(context.Context, model.NormalizedAddress) (*model.OwnerRecord, error) {
				return nil, &model.PageError{Kind: model.ErrShape, Title: "Property Search"}
			},
			wantKind: model.FailureShape,
		},
		{
			name: "transport",
			locate: func(context.Context, model.NormalizedAddress) (*model.OwnerRecord, error) {
				return nil, errors.New("connection refused")
			},
			wantKind: model.FailureTransport,
		},
		{
			name: "lookup exceeds stage timeout",
			locate: func(ctx context.Context, _ model.NormalizedAddress) (*model.OwnerRecord, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantKind: model.FailureTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lead := newLead()
			step := NewOwnerStep(tt.locate, WithStageTimeout(50*time.Millisecond))
			if err := step.Do(context.Background(), lead); err != nil {
				t.Fatalf("step returned error: %v", err)
			}

			if tt.wantOK {
				if lead.State != model.StateOwnerResolved || lead.Owner == nil {
					t.Fatalf("state = %v owner = %+v", lead.State, lead.Owner)
				}
				return
			}
			if lead.State != model.StateOwnerFailed || lead.Owner != nil {
				t.Fatalf("state = %v owner = %+v", lead.State, lead.Owner)
			}
			f, ok := lead.FailureFor(model.StageOwner)
			if !ok || f.Kind != tt.wantKind {
				t.Errorf("failure = %+v, want kind %v", f, tt.wantKind)
			}
		})
	}
}

func TestContactStep(t *testing.T) {
	t.Parallel()

	t.Run("skips lead without owner", func(t *testing.T) {
		t.Parallel()

		called := false
		step := NewContactStep(contactFunc(func(context.Context, string, model.NormalizedAddress) (*model.ContactRecord, error) {
			called = true
			return nil, nil
		}))

		lead := newLead()
		if err := step.Do(context.Background(), lead); err != nil {
			t.Fatal(err)
		}
		if called {
			t.Error("locator should not be called")
		}
		if lead.State != model.StateSkippedNoOwner {
			t.Errorf("state = %v", lead.State)
		}
		if len(lead.Failures) != 0 {
			t.Errorf("skip should not record a failure: %+v", lead.Failures)
		}
	})

	t.Run("passes owner name and address", func(t *testing.T) {
		t.Parallel()

		var gotName, gotStreet string
		step := NewContactStep(contactFunc(func(_ context.Context, name string, addr model.NormalizedAddress) (*model.ContactRecord, error) {
			gotName, gotStreet = name, addr.Street
			return &model.ContactRecord{
				PhoneNumbers:    []string{"(210) 555-0100"},
				Emails:          []string{},
				MatchConfidence: 1.0,
			}, nil
		}))

		lead := newLead()
		lead.Address = model.NormalizedAddress{Street: "123 MAIN ST"}
		lead.Owner = &model.OwnerRecord{OwnerName: "LOPEZ MARIA G"}
		if err := step.Do(context.Background(), lead); err != nil {
			t.Fatal(err)
		}
		if gotName != "LOPEZ MARIA G" || gotStreet != "123 MAIN ST" {
			t.Errorf("locator got %q %q", gotName, gotStreet)
		}
		if lead.State != model.StateContactResolved || lead.Contact == nil {
			t.Errorf("state = %v contact = %+v", lead.State, lead.Contact)
		}
	})

	t.Run("records challenge", func(t *testing.T) {
		t.Parallel()

		step := NewContactStep(contactFunc(func(context.Context, string, model.NormalizedAddress) (*model.ContactRecord, error) {
			return nil, &model.PageError{Kind: model.ErrChallenged, Title: "Just a moment..."}
		}))

		lead := newLead()
		lead.Owner = &model.OwnerRecord{OwnerName: "LOPEZ MARIA G"}
		if err := step.Do(context.Background(), lead); err != nil {
			t.Fatal(err)
		}
		want := []model.StageFailure{{
			Stage:       model.StageContact,
			Kind:        model.FailureChallenge,
			Diagnostics: map[string]string{"title": "Just a moment..."},
		}}
		if diff := cmp.Diff(want, lead.Failures, cmpopts.IgnoreFields(model.StageFailure{}, "Message")); diff != "" {
			t.Errorf("failures mismatch (-want +got):\n%s", diff)
		}
		if lead.State != model.StateContactFailed {
			t.Errorf("state = %v", lead.State)
		}
	})
}
