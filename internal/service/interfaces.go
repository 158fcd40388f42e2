// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/bidwatch/bidwatch/internal/model"
)

// Storage defines the contract for the durable store.
type Storage interface {
	// Listing operations
	SaveListing(ctx context.Context, listing *model.ListingRecord) error
	GetListing(ctx context.Context, id string) (*model.ListingRecord, error)
	ListListings(ctx context.Context) ([]model.ListingRecord, error)
	ListingCount(ctx context.Context) (int, error)
	// ClearListingPayload drops a listing's bulk content (extracted text
	// and attachment manifest) while preserving its metadata row.
	ClearListingPayload(ctx context.Context, id string) error

	// Fit verdict operations
	SaveFitVerdict(ctx context.Context, verdict *model.FitVerdict) error
	GetFitVerdict(ctx context.Context, listingID, analysisType string) (*model.FitVerdict, error)
	ListFitVerdicts(ctx context.Context, analysisType string) (map[string]model.FitVerdict, error)

	// Run ledger operations
	RecordRun(ctx context.Context, run *model.RunRecord) error
	LastRun(ctx context.Context) (*model.RunRecord, error)
	LastSuccessfulRun(ctx context.Context) (*model.RunRecord, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// StoreTransport moves the durable store between its long-lived home and
// the local filesystem. Both operations are atomic from the merge engine's
// perspective: either the whole store moves, or nothing does.
type StoreTransport interface {
	Download(ctx context.Context) (localPath string, err error)
	Upload(ctx context.Context, localPath string) error
}

// DetailFetcher obtains full listing detail for a promising candidate.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, item model.FeedItem) (*model.ListingDetail, error)
}

// TextExtractor turns an opaque attachment payload into plain text.
// Binary formats it does not understand yield an error, not a panic.
type TextExtractor interface {
	Extract(ctx context.Context, payload model.AttachmentPayload) (string, error)
}

// Scorer is the external scoring collaborator. It receives a prompt built
// from listing metadata plus extracted text and returns the raw response
// body; the analyzer owns parsing and validation.
type Scorer interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// RetryOptions configures retry behavior for external calls.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RunSummary aggregates a completed pipeline invocation for display.
type RunSummary struct {
	LowerBound     time.Time
	ItemsFound     int
	ItemsPromising int
	ItemsFetched   int
	ItemsAnalyzed  int
	HighRatedCount int
	MergedCount    int
}
