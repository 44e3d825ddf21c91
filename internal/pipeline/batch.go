package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/leadscan/internal/model"
)

const (
	// DefaultConcurrency is the number of records enriched at once. Each
	// worker drives its own browser session.
	DefaultConcurrency = 3

	// MemoryPerWorker is the memory budgeted for one browser worker.
	MemoryPerWorker uint64 = 512 << 20
)

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// BatchProcessor enriches many records concurrently. Each record gets a
// fresh pipeline from the factory.
type BatchProcessor struct {
	pipelineFactory func() *Pipeline

	concurrency int
	perWorker   uint64
	memory      func() (uint64, error)

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent records.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithMemoryPerWorker clamps concurrency so that workers times perWorker
// fits in available memory. Zero disables the clamp.
func WithMemoryPerWorker(perWorker uint64) BatchOption {
	return func(b *BatchProcessor) {
		b.perWorker = perWorker
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
		perWorker:       MemoryPerWorker,
		memory:          availableMemory,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Concurrency returns the worker count after the memory clamp.
func (bp *BatchProcessor) Concurrency() int {
	n := bp.concurrency
	if bp.perWorker == 0 || n <= 1 {
		return n
	}
	avail, err := bp.memory()
	if err != nil {
		bp.logger.Debug("cannot read available memory", "error", err)
		return n
	}
	fits := int(avail / bp.perWorker)
	if fits < 1 {
		fits = 1
	}
	if fits < n {
		bp.logger.Warn("reducing concurrency to fit available memory",
			"requested", n,
			"workers", fits,
			"available_mb", avail>>20,
		)
		return fits
	}
	return n
}

// ProcessBatch enriches records and returns one lead per record, in input
// order. Every returned lead is in the DONE state. The error is non-nil
// only when ctx was cancelled; the leads are still returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, records []model.RawListingRecord) ([]*model.EnrichedLead, error) {
	leads := make([]*model.EnrichedLead, len(records))
	err := bp.ProcessBatchWithCallback(ctx, records, func(lead *model.EnrichedLead, i int) {
		leads[i] = lead
	})
	return leads, err
}

// ProcessBatchWithCallback enriches records and calls callback with each
// finished lead and its index. The callback runs on the worker goroutine
// and must be safe for concurrent use.
//
// Records not yet started when ctx is cancelled are still handed to the
// callback, finished with no stages run.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	records []model.RawListingRecord,
	callback func(lead *model.EnrichedLead, index int),
) error {
	workers := bp.Concurrency()
	bp.logger.Info("starting batch processing",
		"total_records", len(records),
		"concurrency", workers,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(workers)

	for i, record := range records {
		g.Go(func() error {
			lead := model.NewEnrichedLead(record)
			if ctx.Err() != nil {
				lead.Finish()
				callback(lead, i)
				return nil
			}

			bp.logger.Debug("enriching record",
				"document", record.DocumentNumber,
				"index", i+1,
				"total", len(records),
			)

			// Step errors are logged by the pipeline and the lead is
			// finished either way.
			_ = bp.pipelineFactory().Execute(ctx, lead) //nolint:errcheck

			callback(lead, i)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	bp.logger.Info("batch processing complete",
		"total_records", len(records),
		"elapsed", time.Since(startTime),
	)
	return ctx.Err()
}
