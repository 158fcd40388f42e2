// Package pipeline wires the discovery stages into one batch pass:
// ingestion, pre-filter, detail fetch, fit analysis, merge, cleanup, and
// the run ledger write, in strict stage order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bidwatch/bidwatch/internal/cleanup"
	"github.com/bidwatch/bidwatch/internal/fetch"
	"github.com/bidwatch/bidwatch/internal/ledger"
	"github.com/bidwatch/bidwatch/internal/merge"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/prefilter"
	"github.com/bidwatch/bidwatch/internal/service"
)

// Ingestor is the feed ingestion stage.
type Ingestor interface {
	FetchSince(ctx context.Context, lowerBound time.Time, maxItems int) ([]model.FeedItem, error)
}

// DetailStage is the detail fetch stage.
type DetailStage interface {
	FetchAll(ctx context.Context, verdicts []model.PreFilterVerdict) fetch.Result
}

// FitAnalyzer is the per-record analysis stage.
type FitAnalyzer interface {
	Analyze(ctx context.Context, record *model.ListingRecord) (model.FitVerdict, error)
}

// Deps are the pipeline's collaborators, injected at construction.
type Deps struct {
	Ingestor Ingestor
	Filter   *prefilter.Filter
	Fetcher  DetailStage
	Analyzer FitAnalyzer
	Merger   *merge.Engine
	Cleaner  *cleanup.Engine
	Ledger   *ledger.Ledger
	Store    service.Storage
}

// Config holds the pipeline's tunables, all externally supplied.
type Config struct {
	Criteria       prefilter.Criteria
	CleanupOpts    cleanup.Options
	MaxItems       int
	AnalyzeWorkers int
	RunCleanup     bool
}

// RunOptions vary per invocation.
type RunOptions struct {
	// Since overrides the ledger-derived ingestion lower bound.
	Since *time.Time
	// ScrapeOnly stops after merge, skipping analysis and cleanup.
	ScrapeOnly bool
}

// Pipeline executes one batch pass per Run call.
type Pipeline struct {
	deps  Deps
	clock func() time.Time
	cfg   Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// New creates a pipeline.
func New(deps Deps, cfg Config, opts ...Option) *Pipeline {
	if cfg.AnalyzeWorkers <= 0 {
		cfg.AnalyzeWorkers = 1
	}
	pipeline := &Pipeline{
		deps:  deps,
		clock: time.Now,
		cfg:   cfg,
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline
}

// Run executes one pass. Fatal-to-run failures (feed, store) are recorded
// in the ledger as a failed run and returned; per-item failures are logged
// and the run continues without those items.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*service.RunSummary, error) {
	startedAt := p.clock()

	lowerBound, err := p.lowerBound(ctx, opts)
	if err != nil {
		return nil, err
	}

	items, err := p.deps.Ingestor.FetchSince(ctx, lowerBound, p.cfg.MaxItems)
	if err != nil {
		p.recordFailure(ctx, startedAt, err)
		return nil, err
	}

	verdicts := p.deps.Filter.Filter(ctx, items, p.cfg.Criteria)
	promising := make([]model.PreFilterVerdict, 0, len(verdicts))
	for _, verdict := range verdicts {
		if verdict.Promising {
			promising = append(promising, verdict)
		}
	}

	fetched := p.deps.Fetcher.FetchAll(ctx, promising)

	var fitVerdicts []model.FitVerdict
	if !opts.ScrapeOnly {
		fitVerdicts = p.analyzeAll(ctx, fetched.Records)
	}

	stats, err := p.deps.Merger.Merge(ctx, fetched.Records, fitVerdicts)
	if err != nil {
		p.recordFailure(ctx, startedAt, err)
		return nil, err
	}

	if p.cfg.RunCleanup && !opts.ScrapeOnly {
		stored, listErr := p.deps.Store.ListFitVerdicts(ctx, model.AnalysisTypeAI)
		if listErr != nil {
			p.recordFailure(ctx, startedAt, listErr)
			return nil, listErr
		}
		outcome := p.deps.Cleaner.Cleanup(ctx, stored, p.cfg.CleanupOpts)
		for _, cleanupErr := range outcome.Errors {
			slog.Warn("Cleanup error", "detail", cleanupErr)
		}
	}

	summary := &service.RunSummary{
		LowerBound:     lowerBound,
		ItemsFound:     len(items),
		ItemsPromising: len(promising),
		ItemsFetched:   len(fetched.Records),
		ItemsAnalyzed:  len(fitVerdicts),
		HighRatedCount: countHighRated(fitVerdicts),
		MergedCount:    stats.MergedCount(),
	}

	run := &model.RunRecord{
		StartedAt:      startedAt,
		Status:         model.RunStatusOK,
		ItemsFound:     summary.ItemsFound,
		ItemsFetched:   summary.ItemsFetched,
		ItemsAnalyzed:  summary.ItemsAnalyzed,
		HighRatedCount: summary.HighRatedCount,
	}
	if err := p.deps.Ledger.RecordRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	return summary, nil
}

func (p *Pipeline) lowerBound(ctx context.Context, opts RunOptions) (time.Time, error) {
	if opts.Since != nil {
		return *opts.Since, nil
	}
	return p.deps.Ledger.LowerBound(ctx)
}

// analyzeAll scores fetched records concurrently up to the worker bound.
// Results flow through one channel so the merge input is assembled by a
// single goroutine; a per-record failure drops that record's verdict only.
func (p *Pipeline) analyzeAll(ctx context.Context, records []model.ListingRecord) []model.FitVerdict {
	jobs := make(chan *model.ListingRecord, len(records))
	results := make(chan *model.FitVerdict, len(records))

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.AnalyzeWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range jobs {
				verdict, err := p.deps.Analyzer.Analyze(ctx, record)
				if err != nil {
					slog.Warn("Analysis failed, skipping record",
						"listing_id", record.ID,
						"error", err)
					results <- nil
					continue
				}
				results <- &verdict
			}
		}()
	}

	for i := range records {
		jobs <- &records[i]
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var verdicts []model.FitVerdict
	for verdict := range results {
		if verdict != nil {
			verdicts = append(verdicts, *verdict)
		}
	}
	return verdicts
}

func countHighRated(verdicts []model.FitVerdict) int {
	count := 0
	for _, verdict := range verdicts {
		if verdict.Rating == model.RatingExcellent || verdict.Rating == model.RatingGood {
			count++
		}
	}
	return count
}

// recordFailure appends a failed-run marker. Counts stay zero; only the
// error is recorded.
func (p *Pipeline) recordFailure(ctx context.Context, startedAt time.Time, runErr error) {
	run := &model.RunRecord{
		StartedAt: startedAt,
		Status:    model.RunStatusFailed,
		Error:     runErr.Error(),
	}
	if err := p.deps.Ledger.RecordRun(ctx, run); err != nil {
		slog.Error("Failed to record failed run", "error", err)
	}
}
