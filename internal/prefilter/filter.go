package prefilter

import (
	"context"
	"log/slog"
	"sort"

	"github.com/bidwatch/bidwatch/internal/model"
)

// Criteria is the configuration bundle the filter evaluates verdicts
// against. All values come from operator configuration.
type Criteria struct {
	MinEstimatedBudget  *float64
	MinConfidence       float64
	MaxResults          int
	RequireTopicalMatch bool
	ExcludeRedFlagged   bool
}

// Filter scores items with the configured classifier strategy, applies the
// selection criteria, and returns a bounded, confidence-ranked subset.
type Filter struct {
	classifier ClassifierStrategy
}

// New creates a filter over the given classifier strategy.
func New(classifier ClassifierStrategy) *Filter {
	return &Filter{classifier: classifier}
}

// Filter evaluates each item independently, keeps verdicts satisfying the
// criteria, sorts them by confidence descending, and truncates to
// MaxResults. The bounded result is what keeps detail fetch cost in check.
func (f *Filter) Filter(ctx context.Context, items []model.FeedItem, criteria Criteria) []model.PreFilterVerdict {
	verdicts := make([]model.PreFilterVerdict, 0, len(items))
	for _, item := range items {
		verdict, err := f.classifier.Classify(ctx, item)
		if err != nil {
			// Strategies carry their own fallback, so an error here means
			// even the heuristic could not score the item.
			slog.Error("Classifier failed for item, skipping",
				"item_id", item.ID,
				"error", err)
			continue
		}

		if !f.accept(verdict, criteria) {
			continue
		}
		verdicts = append(verdicts, verdict)
	}

	sort.SliceStable(verdicts, func(i, j int) bool {
		return verdicts[i].Confidence > verdicts[j].Confidence
	})

	if criteria.MaxResults > 0 && len(verdicts) > criteria.MaxResults {
		verdicts = verdicts[:criteria.MaxResults]
	}

	slog.Info("Pre-filter complete",
		"scored", len(items),
		"selected", len(verdicts))

	return verdicts
}

func (f *Filter) accept(verdict model.PreFilterVerdict, criteria Criteria) bool {
	if verdict.Confidence < criteria.MinConfidence {
		return false
	}
	if criteria.RequireTopicalMatch && len(verdict.MatchedCategories) == 0 {
		return false
	}
	if criteria.ExcludeRedFlagged && len(verdict.RedFlags) > 0 {
		return false
	}
	if criteria.MinEstimatedBudget != nil {
		if verdict.EstimatedBudget == nil || *verdict.EstimatedBudget < *criteria.MinEstimatedBudget {
			return false
		}
	}
	return true
}
