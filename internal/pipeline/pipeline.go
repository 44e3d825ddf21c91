package pipeline

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nao1215/leadscan/internal/model"
)

const tracerName = "github.com/nao1215/leadscan/internal/pipeline"

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the lead as
// enriched by the previous steps.
type Step interface {
	// Do executes the step against lead. Per-record failures are recorded
	// on the lead and nil is returned; a non-nil error means the step could
	// not run at all.
	Do(ctx context.Context, lead *model.EnrichedLead) error

	// Name returns the step's name for logging and tracing.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps []Step

	logger *slog.Logger
	tracer trace.Tracer

	// continueOnError keeps executing steps after one returns an error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTracer sets the tracer used for per-step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in order and then moves the lead to DONE. DONE is
// reached even when the context is cancelled or a step errors, so callers
// always get a terminal lead back.
//
// The context is checked before each step; a step that is already running
// is expected to honor cancellation itself.
func (p *Pipeline) Execute(ctx context.Context, lead *model.EnrichedLead) error {
	defer lead.Finish()

	doc := lead.Record.DocumentNumber
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"document", doc,
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name(), "document", doc)

		if err := p.run(ctx, step, lead); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"document", doc,
				"error", err,
			)
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"document", doc,
			"state", lead.State.String(),
		)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, step Step, lead *model.EnrichedLead) error {
	ctx, span := p.tracer.Start(ctx, "step "+step.Name(),
		trace.WithAttributes(attribute.String("lead.document_number", lead.Record.DocumentNumber)),
	)
	defer span.End()

	err := step.Do(ctx, lead)
	span.SetAttributes(attribute.String("lead.state", lead.State.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
