// Package merge reconciles one run's findings with the durable store.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// Stats summarizes one merge pass. Re-running merge with identical input
// yields all-skipped stats and an unchanged store.
type Stats struct {
	ListingsInserted int
	ListingsUpdated  int
	ListingsSkipped  int
	VerdictsMerged   int
	VerdictsSkipped  int
}

// MergedCount is the number of listing rows the pass actually changed.
func (s Stats) MergedCount() int {
	return s.ListingsInserted + s.ListingsUpdated
}

// Engine applies newest-timestamp-wins reconciliation. Newest-wins (rather
// than last-writer-wins) makes merge commutative and idempotent: the same
// incoming set can be replayed against the store without duplicating
// records or regressing newer data with older data.
type Engine struct {
	store service.Storage
}

// New creates a merge engine over the given store. All writes flow through
// the single store handle, which serializes them.
func New(store service.Storage) *Engine {
	return &Engine{store: store}
}

// Merge reconciles incoming listings and verdicts with the store. A
// listing is inserted when absent and overwritten only when the incoming
// UpdatedAt is strictly newer; ties keep the existing record. Verdicts
// follow the same rule keyed by (listing ID, analysis type) on AnalyzedAt.
func (e *Engine) Merge(ctx context.Context, listings []model.ListingRecord, verdicts []model.FitVerdict) (Stats, error) {
	var stats Stats

	for i := range listings {
		incoming := &listings[i]

		existing, err := e.store.GetListing(ctx, incoming.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if saveErr := e.store.SaveListing(ctx, incoming); saveErr != nil {
				return stats, fmt.Errorf("failed to insert listing %s: %w", incoming.ID, saveErr)
			}
			stats.ListingsInserted++
		case err != nil:
			return stats, fmt.Errorf("failed to read listing %s: %w", incoming.ID, err)
		case incoming.UpdatedAt.After(existing.UpdatedAt):
			if saveErr := e.store.SaveListing(ctx, incoming); saveErr != nil {
				return stats, fmt.Errorf("failed to update listing %s: %w", incoming.ID, saveErr)
			}
			stats.ListingsUpdated++
		default:
			stats.ListingsSkipped++
		}
	}

	for i := range verdicts {
		incoming := &verdicts[i]

		existing, err := e.store.GetFitVerdict(ctx, incoming.ListingID, incoming.AnalysisType)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if saveErr := e.store.SaveFitVerdict(ctx, incoming); saveErr != nil {
				return stats, fmt.Errorf("failed to insert verdict for %s: %w", incoming.ListingID, saveErr)
			}
			stats.VerdictsMerged++
		case err != nil:
			return stats, fmt.Errorf("failed to read verdict for %s: %w", incoming.ListingID, err)
		case incoming.AnalyzedAt.After(existing.AnalyzedAt):
			if saveErr := e.store.SaveFitVerdict(ctx, incoming); saveErr != nil {
				return stats, fmt.Errorf("failed to update verdict for %s: %w", incoming.ListingID, saveErr)
			}
			stats.VerdictsMerged++
		default:
			stats.VerdictsSkipped++
		}
	}

	slog.Info("Merge complete",
		"inserted", stats.ListingsInserted,
		"updated", stats.ListingsUpdated,
		"skipped", stats.ListingsSkipped,
		"verdicts_merged", stats.VerdictsMerged)

	return stats, nil
}
