package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nao1215/leadscan/internal/address"
	"github.com/nao1215/leadscan/internal/contact"
	"github.com/nao1215/leadscan/internal/geocode"
	"github.com/nao1215/leadscan/internal/listing"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/leadscan/internal/owner"
)

// ErrAcquisitionFailed is returned by Run when every listing strategy
// failed. It is the only error that aborts a run.
var ErrAcquisitionFailed = errors.New("listing acquisition failed")

// Acquirer fetches the run's listing records.
type Acquirer interface {
	Acquire(ctx context.Context, q listing.Query) listing.Result
}

// BatchGeocoder resolves coordinates for many addresses at once. Unmatched
// addresses are absent from the result.
type BatchGeocoder interface {
	Geocode(ctx context.Context, addrs []geocode.Address) map[string]model.GeocodeResult
}

// RunResult is everything one run produced.
type RunResult struct {
	Leads       []*model.EnrichedLead
	Summary     *model.RunSummary
	Acquisition listing.Result
}

// Report returns the result in the form the report writers take.
func (r *RunResult) Report() *model.RunReport {
	return &model.RunReport{Summary: r.Summary, Leads: r.Leads}
}

// Runner executes a complete enrichment run.
type Runner struct {
	acquirer Acquirer
	geocoder BatchGeocoder
	owners   owner.Locator
	contacts contact.Locator

	concurrency  int
	perWorker    uint64
	stageTimeout time.Duration
	onLead       func(*model.EnrichedLead)

	logger *slog.Logger
	tracer trace.Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger passed down to every step.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRunnerTracer sets the tracer for run and step spans.
func WithRunnerTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithWorkers sets how many records are enriched at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithWorkerMemory sets the memory budget per worker; zero disables the clamp.
func WithWorkerMemory(perWorker uint64) RunnerOption {
	return func(r *Runner) {
		r.perWorker = perWorker
	}
}

// WithLookupTimeout bounds each owner and contact lookup.
func WithLookupTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.stageTimeout = d
		}
	}
}

// WithLeadHook registers a function called with every finished lead as soon
// as it is done. It is called from worker goroutines.
func WithLeadHook(fn func(*model.EnrichedLead)) RunnerOption {
	return func(r *Runner) {
		r.onLead = fn
	}
}

// NewRunner creates a Runner. A nil geocoder leaves every lead GEOCODE_FAILED.
func NewRunner(acq Acquirer, geo BatchGeocoder, owners owner.Locator, contacts contact.Locator, opts ...RunnerOption) *Runner {
	r := &Runner{
		acquirer:     acq,
		geocoder:     geo,
		owners:       owners,
		contacts:     contacts,
		concurrency:  DefaultConcurrency,
		perWorker:    MemoryPerWorker,
		stageTimeout: DefaultStageTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Run acquires records for q and enriches each one.
//
// Only a total acquisition failure returns ErrAcquisitionFailed, together
// with a result carrying the diagnostics of every strategy tried. If ctx is
// cancelled mid-run the partial result is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, q listing.Query) (*RunResult, error) {
	ctx, span := r.tracer.Start(ctx, "run")
	defer span.End()

	started := time.Now()
	acq := r.acquirer.Acquire(ctx, q)

	result := &RunResult{Acquisition: acq}
	if !acq.Success {
		result.Summary = &model.RunSummary{
			StartedAt:   started,
			FinishedAt:  time.Now(),
			Diagnostics: acq.Diagnostics,
		}
		return result, fmt.Errorf("%w: %s", ErrAcquisitionFailed, describeFailure(acq.Diagnostics))
	}

	records := dedupe(acq.Records)
	span.SetAttributes(
		attribute.String("listing.strategy", acq.Strategy),
		attribute.Int("listing.records", len(records)),
	)
	r.logger.Info("records acquired",
		"strategy", acq.Strategy,
		"records", len(records),
		"duplicates", len(acq.Records)-len(records),
	)

	coords := r.geocodeAll(ctx, records)

	bp := NewBatchProcessor(r.newPipeline(coords),
		WithConcurrency(r.concurrency),
		WithMemoryPerWorker(r.perWorker),
		WithBatchLogger(r.logger),
	)

	result.Leads = make([]*model.EnrichedLead, len(records))
	err := bp.ProcessBatchWithCallback(ctx, records, func(lead *model.EnrichedLead, i int) {
		result.Leads[i] = lead
		if r.onLead != nil {
			r.onLead(lead)
		}
	})

	result.Summary = model.NewRunSummary(result.Leads)
	result.Summary.StartedAt = started
	result.Summary.FinishedAt = time.Now()
	result.Summary.Strategy = acq.Strategy
	result.Summary.Diagnostics = acq.Diagnostics

	r.logger.Info("run complete", "summary", result.Summary.String())
	return result, err
}

func (r *Runner) geocodeAll(ctx context.Context, records []model.RawListingRecord) map[string]model.GeocodeResult {
	if r.geocoder == nil || len(records) == 0 {
		return map[string]model.GeocodeResult{}
	}
	addrs := make([]geocode.Address, 0, len(records))
	for _, rec := range records {
		addrs = append(addrs, geocode.FromNormalized(rec.DocumentNumber, address.Normalize(rec.RawAddress)))
	}
	coords := r.geocoder.Geocode(ctx, addrs)
	if coords == nil {
		coords = map[string]model.GeocodeResult{}
	}
	r.logger.Info("geocoding complete", "addresses", len(addrs), "matched", len(coords))
	return coords
}

func (r *Runner) newPipeline(coords map[string]model.GeocodeResult) func() *Pipeline {
	stepOpts := []StepOption{WithStageTimeout(r.stageTimeout), WithStepLogger(r.logger)}
	return func() *Pipeline {
		p := New(
			WithLogger(r.logger),
			WithTracer(r.tracer),
			WithContinueOnError(true),
		)
		p.AddSteps(
			NewNormalizeStep(),
			NewGeocodeStep(coords),
			NewOwnerStep(r.owners, stepOpts...),
			NewContactStep(r.contacts, stepOpts...),
		)
		return p
	}
}

// dedupe drops records whose document number was already seen.
func dedupe(records []model.RawListingRecord) []model.RawListingRecord {
	seen := make(map[string]bool, len(records))
	out := make([]model.RawListingRecord, 0, len(records))
	for _, rec := range records {
		if seen[rec.DocumentNumber] {
			continue
		}
		seen[rec.DocumentNumber] = true
		out = append(out, rec)
	}
	return out
}

func describeFailure(diags []model.PageDiagnostics) string {
	if len(diags) == 0 {
		return "no strategies attempted"
	}
	parts := make([]string, 0, len(diags))
	for _, d := range diags {
		s := d.Strategy + "=" + string(d.Verdict)
		if d.Error != "" {
			s += " (" + d.Error + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
