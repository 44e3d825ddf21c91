package model

import (
	"context"
	"errors"
	"fmt"
)

// State is the position of a lead in the enrichment state machine:
//
//	ACQUIRED -> ADDRESS_NORMALIZED -> (GEOCODED | GEOCODE_FAILED)
//	  -> (OWNER_RESOLVED | OWNER_FAILED)
//	  -> (CONTACT_RESOLVED | CONTACT_FAILED | SKIPPED_NO_OWNER) -> DONE
type State int

const (
	// StateAcquired is the initial state of every record returned by the acquirer.
	StateAcquired State = iota
	// StateAddressNormalized follows address parsing, which never fails.
	StateAddressNormalized
	// StateGeocoded means a coordinate match was attached.
	StateGeocoded
	// StateGeocodeFailed means neither geocoding tier matched the address.
	StateGeocodeFailed
	// StateOwnerResolved means the assessor returned an owner name.
	StateOwnerResolved
	// StateOwnerFailed covers transport, markup, challenge and not-found outcomes.
	StateOwnerFailed
	// StateContactResolved means a person was selected and their detail page read.
	StateContactResolved
	// StateContactFailed covers every contact lookup failure.
	StateContactFailed
	// StateSkippedNoOwner means contact lookup was not attempted.
	StateSkippedNoOwner
	// StateDone is terminal and always reached.
	StateDone
)

// String returns the upper snake case name of the state.
func (s State) String() string {
	switch s {
	case StateAcquired:
		return "ACQUIRED"
	case StateAddressNormalized:
		return "ADDRESS_NORMALIZED"
	case StateGeocoded:
		return "GEOCODED"
	case StateGeocodeFailed:
		return "GEOCODE_FAILED"
	case StateOwnerResolved:
		return "OWNER_RESOLVED"
	case StateOwnerFailed:
		return "OWNER_FAILED"
	case StateContactResolved:
		return "CONTACT_RESOLVED"
	case StateContactFailed:
		return "CONTACT_FAILED"
	case StateSkippedNoOwner:
		return "SKIPPED_NO_OWNER"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler so states serialize by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateAcquired; st <= StateDone; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(text))
}

// FailureKind classifies why a stage did not produce a value.
type FailureKind int

const (
	// FailureTransport is a timeout-free network failure or non-2xx response.
	FailureTransport FailureKind = iota
	// FailureShape means an expected element or field was absent after fallbacks.
	FailureShape
	// FailureChallenge means an anti-bot interstitial was detected.
	FailureChallenge
	// FailureTimeout means a navigation or request exceeded its deadline.
	FailureTimeout
	// FailureNotFound is a valid negative outcome (no match, no property).
	FailureNotFound
)

// String returns the lower snake case name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureShape:
		return "shape"
	case FailureChallenge:
		return "challenge"
	case FailureTimeout:
		return "timeout"
	case FailureNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FailureKind) UnmarshalText(text []byte) error {
	for fk := FailureTransport; fk <= FailureNotFound; fk++ {
		if fk.String() == string(text) {
			*k = fk
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", string(text))
}

// Sentinel errors shared by every integration. Adapters wrap these so the
// orchestrator can classify a failure without knowing which site produced it.
var (
	// ErrNotFound is a clean negative result: the site answered but had no match.
	ErrNotFound = errors.New("not found")

	// ErrChallenged is returned when an anti-bot challenge page is detected.
	ErrChallenged = errors.New("anti-bot challenge detected")

	// ErrShape is returned when the page does not match any known layout.
	ErrShape = errors.New("unrecognized page shape")

	// ErrTimeout is returned when a page did not settle before its deadline.
	ErrTimeout = errors.New("navigation timed out")
)

// ClassifyError maps an error returned by a stage to its FailureKind.
// Anything not otherwise recognized is treated as a transport failure.
func ClassifyError(err error) FailureKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrChallenged):
		return FailureChallenge
	case errors.Is(err, ErrShape):
		return FailureShape
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	default:
		return FailureTransport
	}
}
