package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
)

// FeedConfig configures the discovery feed.
type FeedConfig struct {
	URL      string
	MaxItems int
}

// FilterConfig configures the relevance pre-filter: selection criteria,
// the keyword lists driving the heuristic, and the classifier strategy.
type FilterConfig struct {
	MinEstimatedBudget  *float64
	Strategy            string // "heuristic" or "external"
	TopicalKeywords     []string
	ProjectTypeKeywords []string
	TechnologyKeywords  []string
	RedFlagKeywords     []string
	MinConfidence       float64
	MaxResults          int
	RequireTopicalMatch bool
	ExcludeRedFlagged   bool
}

// ScorerConfig configures the external scoring collaborator.
type ScorerConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// FetchConfig bounds the detail fetch stage.
type FetchConfig struct {
	Workers int
	Timeout time.Duration
}

// RetentionConfig configures the cleanup policy engine.
type RetentionConfig struct {
	CustomScoreThreshold   *float64
	ArtifactDir            string
	AuditFiles             []string
	CleanupPoorBand        bool
	CleanupRejectedBand    bool
	PreserveAuditArtifacts bool
}

// StoreConfig locates the durable store and its transport.
type StoreConfig struct {
	Transport string // "local" or "s3"
	LocalDir  string
	S3Bucket  string
	S3Key     string
	S3Region  string
}

// Config is the full configuration bundle handed to the pipeline. Every
// threshold and keyword list is externally supplied; pipeline logic holds
// no tunables of its own.
type Config struct {
	Feed            FeedConfig
	Filter          FilterConfig
	Scorer          ScorerConfig
	Fetch           FetchConfig
	Retention       RetentionConfig
	Store           StoreConfig
	Bands           model.BandThresholds
	DefaultLookback time.Duration
}

// Load builds a Config from viper's current state, applying defaults for
// everything the config file leaves unset.
func Load() (*Config, error) {
	cfg := &Config{
		Feed: FeedConfig{
			URL:      viper.GetString("feed.url"),
			MaxItems: viper.GetInt("feed.max_items"),
		},
		Filter: FilterConfig{
			Strategy:            viper.GetString("filter.strategy"),
			TopicalKeywords:     viper.GetStringSlice("filter.topical_keywords"),
			ProjectTypeKeywords: viper.GetStringSlice("filter.project_type_keywords"),
			TechnologyKeywords:  viper.GetStringSlice("filter.technology_keywords"),
			RedFlagKeywords:     viper.GetStringSlice("filter.red_flag_keywords"),
			MinConfidence:       viper.GetFloat64("filter.min_confidence"),
			MaxResults:          viper.GetInt("filter.max_results"),
			RequireTopicalMatch: viper.GetBool("filter.require_topical_match"),
			ExcludeRedFlagged:   viper.GetBool("filter.exclude_red_flagged"),
		},
		Scorer: ScorerConfig{
			Endpoint:    viper.GetString("scorer.endpoint"),
			APIKey:      viper.GetString("scorer.api_key"),
			Model:       viper.GetString("scorer.model"),
			MaxTokens:   viper.GetInt("scorer.max_tokens"),
			Temperature: viper.GetFloat64("scorer.temperature"),
		},
		Fetch: FetchConfig{
			Workers: viper.GetInt("fetch.workers"),
			Timeout: viper.GetDuration("fetch.timeout"),
		},
		Retention: RetentionConfig{
			ArtifactDir:            ExpandPath(viper.GetString("retention.artifact_dir")),
			AuditFiles:             viper.GetStringSlice("retention.audit_files"),
			CleanupPoorBand:        viper.GetBool("retention.cleanup_poor_band"),
			CleanupRejectedBand:    viper.GetBool("retention.cleanup_rejected_band"),
			PreserveAuditArtifacts: viper.GetBool("retention.preserve_audit_artifacts"),
		},
		Store: StoreConfig{
			Transport: viper.GetString("store.transport"),
			LocalDir:  ExpandPath(viper.GetString("store.local_dir")),
			S3Bucket:  viper.GetString("store.s3_bucket"),
			S3Key:     viper.GetString("store.s3_key"),
			S3Region:  viper.GetString("store.s3_region"),
		},
		Bands:           model.DefaultBandThresholds(),
		DefaultLookback: viper.GetDuration("run.default_lookback"),
	}

	if viper.IsSet("bands.excellent_floor") {
		cfg.Bands.ExcellentFloor = viper.GetInt("bands.excellent_floor")
	}
	if viper.IsSet("bands.good_floor") {
		cfg.Bands.GoodFloor = viper.GetInt("bands.good_floor")
	}
	if viper.IsSet("bands.poor_floor") {
		cfg.Bands.PoorFloor = viper.GetInt("bands.poor_floor")
	}
	if viper.IsSet("filter.min_estimated_budget") {
		v := viper.GetFloat64("filter.min_estimated_budget")
		cfg.Filter.MinEstimatedBudget = &v
	}
	if viper.IsSet("retention.custom_score_threshold") {
		v := viper.GetFloat64("retention.custom_score_threshold")
		cfg.Retention.CustomScoreThreshold = &v
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.MaxItems == 0 {
		cfg.Feed.MaxItems = 100
	}
	if cfg.Filter.Strategy == "" {
		cfg.Filter.Strategy = "heuristic"
	}
	if cfg.Filter.MinConfidence == 0 {
		cfg.Filter.MinConfidence = 0.5
	}
	if cfg.Filter.MaxResults == 0 {
		cfg.Filter.MaxResults = 10
	}
	if cfg.Fetch.Workers == 0 {
		cfg.Fetch.Workers = 5
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if len(cfg.Retention.AuditFiles) == 0 {
		cfg.Retention.AuditFiles = []string{"summary.md", "metadata.json"}
	}
	if cfg.Store.Transport == "" {
		cfg.Store.Transport = "local"
	}
	if cfg.DefaultLookback == 0 {
		cfg.DefaultLookback = 7 * 24 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Bands.PoorFloor > cfg.Bands.GoodFloor || cfg.Bands.GoodFloor > cfg.Bands.ExcellentFloor {
		return fmt.Errorf("%w: band floors must be ordered poor <= good <= excellent", common.ErrInvalidConfig)
	}
	switch cfg.Filter.Strategy {
	case "heuristic", "external":
	default:
		return fmt.Errorf("%w: unknown filter strategy %q", common.ErrInvalidConfig, cfg.Filter.Strategy)
	}
	switch cfg.Store.Transport {
	case "local", "s3":
	default:
		return fmt.Errorf("%w: unknown store transport %q", common.ErrInvalidConfig, cfg.Store.Transport)
	}
	if cfg.Store.Transport == "s3" && (cfg.Store.S3Bucket == "" || cfg.Store.S3Key == "") {
		return fmt.Errorf("%w: s3 transport requires store.s3_bucket and store.s3_key", common.ErrMissingConfig)
	}
	return nil
}
