package prefilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidwatch/internal/model"
)

func TestFilter_RanksAndTruncates(t *testing.T) {
	filter := New(NewHeuristicClassifier(testKeywords()))

	items := []model.FeedItem{
		{ID: "weak", Title: "Software licenses"},
		{ID: "strong", Title: "Software development", Description: "cloud web application"},
		{ID: "medium", Title: "Software implementation"},
		{ID: "irrelevant", Title: "Catering services"},
	}

	verdicts := filter.Filter(context.Background(), items, Criteria{MaxResults: 2})

	require.Len(t, verdicts, 2)
	assert.Equal(t, "strong", verdicts[0].Item.ID)
	assert.Equal(t, "medium", verdicts[1].Item.ID)
	assert.GreaterOrEqual(t, verdicts[0].Confidence, verdicts[1].Confidence)
}

func TestFilter_Criteria(t *testing.T) {
	budget := 100000.0

	tests := []struct {
		name     string
		criteria Criteria
		item     model.FeedItem
		want     bool
	}{
		{
			name:     "minimum confidence rejects weak match",
			criteria: Criteria{MinConfidence: 0.5},
			item:     model.FeedItem{ID: "a", Title: "Software licenses"},
			want:     false,
		},
		{
			name:     "topical match required",
			criteria: Criteria{RequireTopicalMatch: true},
			item:     model.FeedItem{ID: "a", Title: "Cloud development services"},
			want:     false,
		},
		{
			name:     "red flagged excluded",
			criteria: Criteria{ExcludeRedFlagged: true},
			item:     model.FeedItem{ID: "a", Title: "Software development staffing"},
			want:     false,
		},
		{
			name:     "red flagged kept when not excluded",
			criteria: Criteria{},
			item:     model.FeedItem{ID: "a", Title: "Software development staffing"},
			want:     true,
		},
		{
			name:     "budget floor rejects missing budget",
			criteria: Criteria{MinEstimatedBudget: &budget},
			item:     model.FeedItem{ID: "a", Title: "Software development"},
			want:     false,
		},
		{
			name:     "budget floor rejects small budget",
			criteria: Criteria{MinEstimatedBudget: &budget},
			item:     model.FeedItem{ID: "a", Title: "Software development for $50k"},
			want:     false,
		},
		{
			name:     "budget floor accepts large budget",
			criteria: Criteria{MinEstimatedBudget: &budget},
			item:     model.FeedItem{ID: "a", Title: "Software development for $250k"},
			want:     true,
		},
	}

	filter := New(NewHeuristicClassifier(testKeywords()))
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts := filter.Filter(ctx, []model.FeedItem{tt.item}, tt.criteria)
			if tt.want {
				assert.Len(t, verdicts, 1)
			} else {
				assert.Empty(t, verdicts)
			}
		})
	}
}
