package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/bidwatch/bidwatch/internal/analyze"
	"github.com/bidwatch/bidwatch/internal/cleanup"
	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/config"
	"github.com/bidwatch/bidwatch/internal/feed"
	"github.com/bidwatch/bidwatch/internal/fetch"
	"github.com/bidwatch/bidwatch/internal/ledger"
	"github.com/bidwatch/bidwatch/internal/merge"
	"github.com/bidwatch/bidwatch/internal/pipeline"
	"github.com/bidwatch/bidwatch/internal/prefilter"
	"github.com/bidwatch/bidwatch/internal/service"
	"github.com/bidwatch/bidwatch/internal/storage"
	"github.com/bidwatch/bidwatch/internal/transport"
)

// runtimeEnv holds the per-invocation collaborators: configuration, the
// working copy of the durable store, and the transport that moves it.
type runtimeEnv struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	transport service.StoreTransport
	dbPath    string
}

// setupEnv loads configuration, downloads the durable store, and opens the
// working copy. The caller must end the run with finish (upload) or
// discard (read-only close).
func setupEnv(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	storeTransport, err := buildTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dbPath, err := storeTransport.Download(ctx)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &runtimeEnv{
		cfg:       cfg,
		store:     store,
		transport: storeTransport,
		dbPath:    dbPath,
	}, nil
}

// finish closes the working store and uploads it back to its long-lived
// home. The upload is the run's single durable side effect.
func (e *runtimeEnv) finish(ctx context.Context) error {
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return e.transport.Upload(ctx, e.dbPath)
}

// discard closes the working store without uploading, for read-only
// commands.
func (e *runtimeEnv) discard() {
	if err := e.store.Close(); err != nil {
		slog.Warn("Failed to close store", "error", err)
	}
}

func buildTransport(ctx context.Context, cfg *config.Config) (service.StoreTransport, error) {
	workDir := filepath.Join(os.TempDir(), "bidwatch")

	switch cfg.Store.Transport {
	case "s3":
		return transport.NewS3Transport(ctx, transport.S3Config{
			Bucket:  cfg.Store.S3Bucket,
			Key:     cfg.Store.S3Key,
			Region:  cfg.Store.S3Region,
			WorkDir: workDir,
		})
	default:
		homeDir := cfg.Store.LocalDir
		if homeDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			homeDir = filepath.Join(home, ".local", "share", "bidwatch")
		}
		return transport.NewLocalTransport(homeDir, workDir), nil
	}
}

// buildPipeline assembles the stage graph from configuration. needScorer
// is false for scrape-only passes, which never touch the scoring
// collaborator.
func buildPipeline(env *runtimeEnv, needScorer bool) (*pipeline.Pipeline, error) {
	cfg := env.cfg

	if cfg.Feed.URL == "" {
		return nil, fmt.Errorf("%w: feed.url", common.ErrMissingConfig)
	}

	keywords := prefilter.Keywords{
		Topical:     cfg.Filter.TopicalKeywords,
		ProjectType: cfg.Filter.ProjectTypeKeywords,
		Technology:  cfg.Filter.TechnologyKeywords,
		RedFlag:     cfg.Filter.RedFlagKeywords,
	}
	heuristic := prefilter.NewHeuristicClassifier(keywords)

	var scorer service.Scorer
	if needScorer || cfg.Filter.Strategy == "external" {
		var err error
		scorer, err = analyze.NewHTTPScorer(analyze.ClientConfig{
			Endpoint:    cfg.Scorer.Endpoint,
			APIKey:      cfg.Scorer.APIKey,
			Model:       cfg.Scorer.Model,
			MaxTokens:   cfg.Scorer.MaxTokens,
			Temperature: cfg.Scorer.Temperature,
		})
		if err != nil {
			return nil, err
		}
	}

	var classifier prefilter.ClassifierStrategy = heuristic
	if cfg.Filter.Strategy == "external" {
		classifier = prefilter.NewExternalClassifier(scorer, heuristic)
	}

	bar := progressbar.Default(-1, "fetching details")
	orchestrator := fetch.NewOrchestrator(
		fetch.NewHTTPFetcher(cfg.Fetch.Timeout),
		fetch.NewReadabilityExtractor(),
		cfg.Fetch.Workers,
		fetch.WithProgress(func() { _ = bar.Add(1) }),
	)

	var analyzer pipeline.FitAnalyzer
	if needScorer {
		analyzer = analyze.New(scorer, cfg.Bands)
	}

	deps := pipeline.Deps{
		Ingestor: feed.NewIngestor(cfg.Feed.URL),
		Filter:   prefilter.New(classifier),
		Fetcher:  orchestrator,
		Analyzer: analyzer,
		Merger:   merge.New(env.store),
		Cleaner:  newCleaner(env),
		Ledger:   ledger.New(env.store, cfg.DefaultLookback),
		Store:    env.store,
	}

	return pipeline.New(deps, pipeline.Config{
		Criteria: prefilter.Criteria{
			MinEstimatedBudget:  cfg.Filter.MinEstimatedBudget,
			MinConfidence:       cfg.Filter.MinConfidence,
			MaxResults:          cfg.Filter.MaxResults,
			RequireTopicalMatch: cfg.Filter.RequireTopicalMatch,
			ExcludeRedFlagged:   cfg.Filter.ExcludeRedFlagged,
		},
		CleanupOpts: cleanup.Options{
			CustomScoreThreshold:   cfg.Retention.CustomScoreThreshold,
			CleanupPoorBand:        cfg.Retention.CleanupPoorBand,
			CleanupRejectedBand:    cfg.Retention.CleanupRejectedBand,
			PreserveAuditArtifacts: cfg.Retention.PreserveAuditArtifacts,
		},
		MaxItems:       cfg.Feed.MaxItems,
		AnalyzeWorkers: cfg.Fetch.Workers,
		RunCleanup:     cleanupScheduled(cfg.Retention),
	}), nil
}

// cleanupScheduled reports whether a discovery pass runs the retention
// stage. A custom score threshold schedules it on its own since it
// overrides the band flags.
func cleanupScheduled(retention config.RetentionConfig) bool {
	return retention.CleanupPoorBand ||
		retention.CleanupRejectedBand ||
		retention.CustomScoreThreshold != nil
}

func newCleaner(env *runtimeEnv) *cleanup.Engine {
	return cleanup.New(env.store, env.cfg.Retention.ArtifactDir,
		env.cfg.Retention.AuditFiles, env.cfg.Bands.PoorFloor)
}

// parseSinceFlag turns a --since value into a timestamp, accepting a bare
// date or full RFC 3339.
func parseSinceFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("invalid --since value %q (want YYYY-MM-DD or RFC 3339)", value)
}
