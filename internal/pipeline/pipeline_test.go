package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidwatch/internal/cleanup"
	"github.com/bidwatch/bidwatch/internal/fetch"
	"github.com/bidwatch/bidwatch/internal/ledger"
	"github.com/bidwatch/bidwatch/internal/merge"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/prefilter"
	"github.com/bidwatch/bidwatch/internal/storage"
)

var fixedNow = time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

// stubIngestor serves a fixed item set, honoring the lower bound and item
// cap the way the real feed ingestor does.
type stubIngestor struct {
	items []model.FeedItem
	err   error
}

func (s *stubIngestor) FetchSince(_ context.Context, lowerBound time.Time, maxItems int) ([]model.FeedItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.FeedItem
	for _, item := range s.items {
		if len(out) >= maxItems {
			break
		}
		if item.PublishedAt.After(lowerBound) {
			out = append(out, item)
		}
	}
	return out, nil
}

// stubDetailStage builds one record per verdict with a fixed update
// timestamp so replayed runs merge idempotently.
type stubDetailStage struct {
	updatedAt time.Time
}

func (s *stubDetailStage) FetchAll(_ context.Context, verdicts []model.PreFilterVerdict) fetch.Result {
	var result fetch.Result
	for _, verdict := range verdicts {
		result.Records = append(result.Records, model.ListingRecord{
			ID:            verdict.Item.ID,
			Title:         verdict.Item.Title,
			DetailURL:     verdict.Item.Link,
			PostedDate:    verdict.Item.PublishedAt,
			ExtractedText: "detail text",
			UpdatedAt:     s.updatedAt,
		})
	}
	return result
}

type stubAnalyzer struct {
	score      int
	analyzedAt time.Time
	err        error
}

func (s *stubAnalyzer) Analyze(_ context.Context, record *model.ListingRecord) (model.FitVerdict, error) {
	if s.err != nil {
		return model.FitVerdict{}, s.err
	}
	return model.FitVerdict{
		ListingID:    record.ID,
		AnalysisType: model.AnalysisTypeAI,
		Score:        s.score,
		Rating:       model.DefaultBandThresholds().RatingForScore(s.score),
		Reasoning:    "stub analysis",
		AnalyzedAt:   s.analyzedAt,
	}, nil
}

func feedItems() []model.FeedItem {
	return []model.FeedItem{
		{
			ID:          "rfp-old",
			Title:       "Software development project",
			Link:        "https://example.edu/rfp/old",
			PublishedAt: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			ID:          "rfp-flagged",
			Title:       "Software development staffing",
			Link:        "https://example.edu/rfp/flagged",
			PublishedAt: time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC),
		},
		{
			ID:          "rfp-fresh",
			Title:       "Software development for the library",
			Link:        "https://example.edu/rfp/fresh",
			PublishedAt: time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC),
		},
	}
}

func testKeywords() prefilter.Keywords {
	return prefilter.Keywords{
		Topical:     []string{"software"},
		ProjectType: []string{"development"},
		RedFlag:     []string{"staffing"},
	}
}

type testEnv struct {
	pipe  *Pipeline
	store *storage.SQLiteStorage
}

func newTestPipeline(t *testing.T, ingestor Ingestor, analyzer FitAnalyzer, cfg Config) testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	deps := Deps{
		Ingestor: ingestor,
		Filter:   prefilter.New(prefilter.NewHeuristicClassifier(testKeywords())),
		Fetcher:  &stubDetailStage{updatedAt: fixedNow},
		Analyzer: analyzer,
		Merger:   merge.New(store),
		Cleaner:  cleanup.New(store, t.TempDir(), nil, 40),
		Ledger:   ledger.New(store, 7*24*time.Hour, ledger.WithClock(func() time.Time { return fixedNow })),
		Store:    store,
	}

	if cfg.MaxItems == 0 {
		cfg.MaxItems = 100
	}
	pipe := New(deps, cfg, WithClock(func() time.Time { return fixedNow }))
	return testEnv{pipe: pipe, store: store}
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{items: feedItems()},
		&stubAnalyzer{score: 85, analyzedAt: fixedNow},
		Config{})
	ctx := context.Background()

	since := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	summary, err := env.pipe.Run(ctx, RunOptions{Since: &since})
	require.NoError(t, err)

	// rfp-old predates the bound; rfp-flagged carries a red flag and is
	// not promising; only rfp-fresh reaches fetch and analysis.
	assert.Equal(t, 2, summary.ItemsFound)
	assert.Equal(t, 1, summary.ItemsPromising)
	assert.Equal(t, 1, summary.ItemsFetched)
	assert.Equal(t, 1, summary.ItemsAnalyzed)
	assert.Equal(t, 1, summary.HighRatedCount)
	assert.Equal(t, 1, summary.MergedCount)
	assert.True(t, since.Equal(summary.LowerBound))

	listing, err := env.store.GetListing(ctx, "rfp-fresh")
	require.NoError(t, err)
	assert.Equal(t, "Software development for the library", listing.Title)

	verdict, err := env.store.GetFitVerdict(ctx, "rfp-fresh", model.AnalysisTypeAI)
	require.NoError(t, err)
	assert.Equal(t, 85, verdict.Score)
	assert.Equal(t, model.RatingExcellent, verdict.Rating)

	run, err := env.store.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusOK, run.Status)
	assert.Equal(t, 2, run.ItemsFound)
	assert.Equal(t, 1, run.ItemsAnalyzed)
	assert.Equal(t, 1, run.HighRatedCount)
}

func TestRun_ReplayIsIdempotent(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{items: feedItems()},
		&stubAnalyzer{score: 85, analyzedAt: fixedNow},
		Config{})
	ctx := context.Background()

	since := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	first, err := env.pipe.Run(ctx, RunOptions{Since: &since})
	require.NoError(t, err)
	require.Equal(t, 1, first.MergedCount)

	second, err := env.pipe.Run(ctx, RunOptions{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, 0, second.MergedCount, "replaying the same pass changes nothing")

	count, err := env.store.ListingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRun_ScrapeOnlySkipsAnalysis(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{items: feedItems()},
		nil,
		Config{})
	ctx := context.Background()

	since := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	summary, err := env.pipe.Run(ctx, RunOptions{Since: &since, ScrapeOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ItemsFetched)
	assert.Equal(t, 0, summary.ItemsAnalyzed)
	assert.Equal(t, 1, summary.MergedCount)

	_, err = env.store.GetFitVerdict(ctx, "rfp-fresh", model.AnalysisTypeAI)
	assert.Error(t, err)
}

func TestRun_FeedFailureRecordsFailedRun(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{err: errors.New("feed unavailable")},
		&stubAnalyzer{score: 85, analyzedAt: fixedNow},
		Config{})
	ctx := context.Background()

	_, err := env.pipe.Run(ctx, RunOptions{})
	require.Error(t, err)

	run, runErr := env.store.LastRun(ctx)
	require.NoError(t, runErr)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "feed unavailable")
	assert.Zero(t, run.ItemsFound)
	assert.Zero(t, run.ItemsAnalyzed)

	// A failed run never becomes the next lower bound.
	_, lastOKErr := env.store.LastSuccessfulRun(ctx)
	assert.Error(t, lastOKErr)
}

func TestRun_AnalysisFailureSkipsRecord(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{items: feedItems()},
		&stubAnalyzer{err: errors.New("scorer down")},
		Config{})
	ctx := context.Background()

	since := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	summary, err := env.pipe.Run(ctx, RunOptions{Since: &since})
	require.NoError(t, err, "per-record analysis failures never abort the run")

	assert.Equal(t, 1, summary.ItemsFetched)
	assert.Equal(t, 0, summary.ItemsAnalyzed)
	assert.Equal(t, 1, summary.MergedCount, "the listing still merges without its verdict")

	_, verdictErr := env.store.GetFitVerdict(ctx, "rfp-fresh", model.AnalysisTypeAI)
	assert.Error(t, verdictErr)
}

func TestRun_LowerBoundFromLedger(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{items: feedItems()},
		&stubAnalyzer{score: 85, analyzedAt: fixedNow},
		Config{})
	ctx := context.Background()

	// No prior runs: the default lookback window applies and all three
	// fixture items fall inside it.
	summary, err := env.pipe.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, fixedNow.Add(-7*24*time.Hour).Equal(summary.LowerBound))
	assert.Equal(t, 3, summary.ItemsFound)

	// The next run resumes from the recorded success.
	summary, err = env.pipe.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, fixedNow.Equal(summary.LowerBound))
	assert.Equal(t, 0, summary.ItemsFound)
}

func TestRun_CleanupPrunesLowFit(t *testing.T) {
	env := newTestPipeline(t,
		&stubIngestor{items: feedItems()},
		&stubAnalyzer{score: 20, analyzedAt: fixedNow},
		Config{
			CleanupOpts: cleanup.Options{CleanupRejectedBand: true},
			RunCleanup:  true,
		})
	ctx := context.Background()

	since := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	summary, err := env.pipe.Run(ctx, RunOptions{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.HighRatedCount)

	// The rejected listing's bulk payload is gone; its metadata stays.
	listing, err := env.store.GetListing(ctx, "rfp-fresh")
	require.NoError(t, err)
	assert.Empty(t, listing.ExtractedText)
	assert.Equal(t, "Software development for the library", listing.Title)
}
