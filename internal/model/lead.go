package model

import (
	"errors"
	"strings"
	"time"
)

// Stage names one step of the enrichment pipeline. Failures are recorded
// against the stage that produced them.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageGeocode   Stage = "geocode"
	StageOwner     Stage = "owner"
	StageContact   Stage = "contact"
)

// StageFailure records why a stage left its part of the lead empty.
type StageFailure struct {
	Stage   Stage       `json:"stage"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`

	// Diagnostics carries page context (title, sample classes, URL) for
	// markup and challenge failures.
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}

// EnrichedLead is the output of one record's pass through the pipeline.
// Everything beyond Record is optional: a lead degrades to partial
// enrichment instead of failing as a whole.
type EnrichedLead struct {
	Record  RawListingRecord  `json:"record"`
	Address NormalizedAddress `json:"address"`
	Geocode *GeocodeResult    `json:"geocode,omitempty"`
	Owner   *OwnerRecord      `json:"owner,omitempty"`
	Contact *ContactRecord    `json:"contact,omitempty"`

	// State is the latest state reached; History lists every state in order.
	State   State   `json:"state"`
	History []State `json:"history"`

	Failures []StageFailure `json:"failures,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NewEnrichedLead creates a lead in the ACQUIRED state.
func NewEnrichedLead(record RawListingRecord) *EnrichedLead {
	return &EnrichedLead{
		Record:    record,
		State:     StateAcquired,
		History:   []State{StateAcquired},
		StartedAt: time.Now(),
	}
}

// Transition moves the lead to the given state and appends it to History.
func (l *EnrichedLead) Transition(s State) {
	l.State = s
	l.History = append(l.History, s)
}

// Fail records a failure for a stage and moves the lead to the given state.
// The failure kind is derived from err.
func (l *EnrichedLead) Fail(stage Stage, s State, err error) {
	f := StageFailure{
		Stage:   stage,
		Kind:    ClassifyError(err),
		Message: err.Error(),
	}
	var pe *PageError
	if errors.As(err, &pe) {
		f.Diagnostics = pe.Diagnostics()
	}
	l.Failures = append(l.Failures, f)
	l.Transition(s)
}

// Finish moves the lead to DONE. Calling it more than once has no effect.
func (l *EnrichedLead) Finish() {
	if l.State == StateDone {
		return
	}
	l.Transition(StateDone)
	l.FinishedAt = time.Now()
}

// Reached reports whether the lead passed through the given state.
func (l *EnrichedLead) Reached(s State) bool {
	for _, h := range l.History {
		if h == s {
			return true
		}
	}
	return false
}

// FailureFor returns the failure recorded for a stage, if any.
func (l *EnrichedLead) FailureFor(stage Stage) (StageFailure, bool) {
	for _, f := range l.Failures {
		if f.Stage == stage {
			return f, true
		}
	}
	return StageFailure{}, false
}

// PageError is a stage failure that carries page diagnostics. Kind is one
// of the sentinel errors and is what errors.Is matches against.
type PageError struct {
	Kind    error
	URL     string
	Title   string
	Classes []string
	Detail  string
}

// Error implements error.
func (e *PageError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Title != "" {
		sb.WriteString(" (title=")
		sb.WriteString(e.Title)
		sb.WriteString(")")
	}
	return sb.String()
}

// Unwrap returns the sentinel kind.
func (e *PageError) Unwrap() error {
	return e.Kind
}

// Diagnostics flattens the page context for storage on a StageFailure.
func (e *PageError) Diagnostics() map[string]string {
	d := make(map[string]string)
	if e.URL != "" {
		d["url"] = e.URL
	}
	if e.Title != "" {
		d["title"] = e.Title
	}
	if len(e.Classes) > 0 {
		d["classes"] = strings.Join(e.Classes, " ")
	}
	return d
}
