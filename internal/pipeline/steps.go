package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/leadscan/internal/address"
	"github.com/nao1215/leadscan/internal/contact"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/leadscan/internal/owner"
)

// DefaultStageTimeout bounds one owner or contact lookup, including every
// navigation it makes.
const DefaultStageTimeout = 3 * time.Minute

// NormalizeStep parses the raw listing address. It never fails.
type NormalizeStep struct{}

// NewNormalizeStep creates a NormalizeStep.
func NewNormalizeStep() *NormalizeStep {
	return &NormalizeStep{}
}

// Name returns the step name.
func (s *NormalizeStep) Name() string {
	return "normalize"
}

// Do sets lead.Address.
func (s *NormalizeStep) Do(_ context.Context, lead *model.EnrichedLead) error {
	lead.Address = address.Normalize(lead.Record.RawAddress)
	lead.Transition(model.StateAddressNormalized)
	return nil
}

// GeocodeStep attaches the result of the run's batch geocode. Geocoding is
// done once for the whole run, so this step only looks the lead up.
type GeocodeStep struct {
	// results is keyed by document number.
	results map[string]model.GeocodeResult
}

// NewGeocodeStep creates a GeocodeStep reading from results. The map is
// only read, so one map can be shared by concurrent pipelines.
func NewGeocodeStep(results map[string]model.GeocodeResult) *GeocodeStep {
	return &GeocodeStep{results: results}
}

// Name returns the step name.
func (s *GeocodeStep) Name() string {
	return "geocode"
}

// Do attaches the coordinates or records a not-found failure.
func (s *GeocodeStep) Do(_ context.Context, lead *model.EnrichedLead) error {
	r, ok := s.results[lead.Record.DocumentNumber]
	if !ok {
		lead.Fail(model.StageGeocode, model.StateGeocodeFailed,
			fmt.Errorf("no geocoder matched %q: %w", lead.Address.OneLine(), model.ErrNotFound))
		return nil
	}
	lead.Geocode = &r
	lead.Transition(model.StateGeocoded)
	return nil
}

// OwnerStep resolves the owner of record through the assessor.
type OwnerStep struct {
	locator owner.Locator
	timeout time.Duration
	logger  *slog.Logger
}

// StepOption configures the lookup steps.
type StepOption func(*stepConfig)

type stepConfig struct {
	timeout time.Duration
	logger  *slog.Logger
}

// WithStageTimeout bounds a single lookup. Non-positive values are ignored.
func WithStageTimeout(d time.Duration) StepOption {
	return func(c *stepConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStepLogger sets the logger used by a lookup step.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(c *stepConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newStepConfig(opts []StepOption) stepConfig {
	c := stepConfig{timeout: DefaultStageTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewOwnerStep creates an OwnerStep.
func NewOwnerStep(locator owner.Locator, opts ...StepOption) *OwnerStep {
	c := newStepConfig(opts)
	return &OwnerStep{locator: locator, timeout: c.timeout, logger: c.logger}
}

// Name returns the step name.
func (s *OwnerStep) Name() string {
	return "owner"
}

// Do sets lead.Owner or records why it could not.
func (s *OwnerStep) Do(ctx context.Context, lead *model.EnrichedLead) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.locator.LocateOwner(ctx, lead.Address)
	if err == nil && (rec == nil || rec.OwnerName == "") {
		err = fmt.Errorf("assessor returned no owner: %w", model.ErrNotFound)
	}
	if err != nil {
		s.logger.Info("owner not resolved",
			"document", lead.Record.DocumentNumber,
			"kind", model.ClassifyError(err).String(),
			"error", err,
		)
		lead.Fail(model.StageOwner, model.StateOwnerFailed, err)
		return nil
	}

	lead.Owner = rec
	lead.Transition(model.StateOwnerResolved)
	return nil
}

// ContactStep resolves phones and emails for the owner. Leads without an
// owner are skipped.
type ContactStep struct {
	locator contact.Locator
	timeout time.Duration
	logger  *slog.Logger
}

// NewContactStep creates a ContactStep.
func NewContactStep(locator contact.Locator, opts ...StepOption) *ContactStep {
	c := newStepConfig(opts)
	return &ContactStep{locator: locator, timeout: c.timeout, logger: c.logger}
}

// Name returns the step name.
func (s *ContactStep) Name() string {
	return "contact"
}

// Do sets lead.Contact, records a failure, or marks the lead skipped.
func (s *ContactStep) Do(ctx context.Context, lead *model.EnrichedLead) error {
	if lead.Owner == nil || lead.Owner.OwnerName == "" {
		lead.Transition(model.StateSkippedNoOwner)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.locator.LocateContacts(ctx, lead.Owner.OwnerName, lead.Address)
	if err == nil && rec == nil {
		err = fmt.Errorf("people search returned no record: %w", model.ErrNotFound)
	}
	if err != nil {
		s.logger.Info("contact not resolved",
			"document", lead.Record.DocumentNumber,
			"kind", model.ClassifyError(err).String(),
			"error", err,
		)
		lead.Fail(model.StageContact, model.StateContactFailed, err)
		return nil
	}

	lead.Contact = rec
	lead.Transition(model.StateContactResolved)
	return nil
}
