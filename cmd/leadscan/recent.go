package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/leadscan/internal/listing"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/leadscan/internal/pipeline"
)

// recentLeads is the part of the lead database recentFilter needs.
type recentLeads interface {
	HasRecentLead(ctx context.Context, documentNumber string, d time.Duration) (bool, error)
}

// recentFilter drops acquired records that were enriched within window.
// Lookup errors keep the record.
type recentFilter struct {
	next   pipeline.Acquirer
	db     recentLeads
	window time.Duration
	logger *slog.Logger
}

// Acquire implements pipeline.Acquirer.
func (f *recentFilter) Acquire(ctx context.Context, q listing.Query) listing.Result {
	res := f.next.Acquire(ctx, q)
	if !res.Success || len(res.Records) == 0 {
		return res
	}

	kept := make([]model.RawListingRecord, 0, len(res.Records))
	for _, r := range res.Records {
		recent, err := f.db.HasRecentLead(ctx, r.DocumentNumber, f.window)
		if err != nil {
			f.logger.Warn("recent lead check failed", "document", r.DocumentNumber, "error", err)
		}
		if recent {
			continue
		}
		kept = append(kept, r)
	}
	if skipped := len(res.Records) - len(kept); skipped > 0 {
		f.logger.Info("skipping recently enriched notices", "skipped", skipped, "window", f.window)
	}
	res.Records = kept
	return res
}
