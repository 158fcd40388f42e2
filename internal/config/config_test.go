package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidwatch/internal/common"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	viper.Set("feed.url", "https://example.edu/feed.rss")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Feed.MaxItems)
	assert.Equal(t, "heuristic", cfg.Filter.Strategy)
	assert.Equal(t, 0.5, cfg.Filter.MinConfidence)
	assert.Equal(t, 10, cfg.Filter.MaxResults)
	assert.Equal(t, 5, cfg.Fetch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"summary.md", "metadata.json"}, cfg.Retention.AuditFiles)
	assert.Equal(t, "local", cfg.Store.Transport)
	assert.Equal(t, 7*24*time.Hour, cfg.DefaultLookback)
	assert.Equal(t, 80, cfg.Bands.ExcellentFloor)
	assert.Equal(t, 60, cfg.Bands.GoodFloor)
	assert.Equal(t, 40, cfg.Bands.PoorFloor)
	assert.Nil(t, cfg.Filter.MinEstimatedBudget)
	assert.Nil(t, cfg.Retention.CustomScoreThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	resetViper(t)
	viper.Set("feed.url", "https://example.edu/feed.rss")
	viper.Set("bands.excellent_floor", 90)
	viper.Set("bands.good_floor", 70)
	viper.Set("bands.poor_floor", 50)
	viper.Set("filter.min_estimated_budget", 100000.0)
	viper.Set("retention.custom_score_threshold", 55.0)
	viper.Set("filter.topical_keywords", []string{"software", "web"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Bands.ExcellentFloor)
	assert.Equal(t, 70, cfg.Bands.GoodFloor)
	assert.Equal(t, 50, cfg.Bands.PoorFloor)
	require.NotNil(t, cfg.Filter.MinEstimatedBudget)
	assert.Equal(t, 100000.0, *cfg.Filter.MinEstimatedBudget)
	require.NotNil(t, cfg.Retention.CustomScoreThreshold)
	assert.Equal(t, 55.0, *cfg.Retention.CustomScoreThreshold)
	assert.Equal(t, []string{"software", "web"}, cfg.Filter.TopicalKeywords)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr error
	}{
		{
			name:    "band floors out of order",
			set:     map[string]any{"bands.poor_floor": 70, "bands.good_floor": 60},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "unknown filter strategy",
			set:     map[string]any{"filter.strategy": "psychic"},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "unknown store transport",
			set:     map[string]any{"store.transport": "ftp"},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "s3 transport without bucket",
			set:     map[string]any{"store.transport": "s3"},
			wantErr: common.ErrMissingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			viper.Set("feed.url", "https://example.edu/feed.rss")
			for key, value := range tt.set {
				viper.Set(key, value)
			}

			_, err := Load()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("BIDWATCH_TEST_DIR", "/srv/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "absolute unchanged", in: "/var/lib/bidwatch", want: "/var/lib/bidwatch"},
		{name: "tilde prefix", in: "~/bidwatch", want: filepath.Join(home, "bidwatch")},
		{name: "bare tilde", in: "~", want: home},
		{name: "env var", in: "$BIDWATCH_TEST_DIR/store", want: "/srv/data/store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
