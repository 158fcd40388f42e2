// Package prefilter narrows freshly ingested feed items to the small set
// worth the cost of a full detail fetch.
package prefilter

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/bidwatch/bidwatch/internal/model"
)

// Keywords are the operator-supplied keyword lists driving the heuristic.
type Keywords struct {
	Topical     []string
	ProjectType []string
	Technology  []string
	RedFlag     []string
}

// Heuristic confidence weights. The additive model is deliberately coarse:
// its only job is to rank candidates ahead of the expensive fetch stage.
const (
	topicalWeight     = 0.4
	projectTypeWeight = 0.3
	technologyWeight  = 0.2
	redFlagPenalty    = 0.2

	promisingFloor = 0.5
)

// HeuristicClassifier scores items with an additive keyword model. It is
// always available and serves as the fallback when an external classifier
// misbehaves.
type HeuristicClassifier struct {
	keywords Keywords
}

// NewHeuristicClassifier creates a heuristic classifier over the given
// keyword lists.
func NewHeuristicClassifier(keywords Keywords) *HeuristicClassifier {
	return &HeuristicClassifier{keywords: keywords}
}

// Classify scores a single item. Each item is scored independently; there
// is no cross-item state. The returned error is always nil and exists to
// satisfy ClassifierStrategy.
func (h *HeuristicClassifier) Classify(_ context.Context, item model.FeedItem) (model.PreFilterVerdict, error) {
	text := strings.ToLower(item.Title + " " + item.Description)

	verdict := model.PreFilterVerdict{Item: item}

	matchedTopical := matchAny(text, h.keywords.Topical)
	if len(matchedTopical) > 0 {
		verdict.Confidence += topicalWeight
		verdict.MatchedCategories = matchedTopical
	}
	if len(matchAny(text, h.keywords.ProjectType)) > 0 {
		verdict.Confidence += projectTypeWeight
	}
	if len(matchAny(text, h.keywords.Technology)) > 0 {
		verdict.Confidence += technologyWeight
	}

	verdict.RedFlags = matchAny(text, h.keywords.RedFlag)
	verdict.Confidence -= redFlagPenalty * float64(len(verdict.RedFlags))

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	} else if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	verdict.EstimatedBudget = extractBudget(item.Title + " " + item.Description)

	// Red flags are an absolute veto regardless of confidence.
	verdict.Promising = verdict.Confidence >= promisingFloor &&
		len(matchedTopical) > 0 &&
		len(verdict.RedFlags) == 0

	return verdict, nil
}

func matchAny(text string, keywords []string) []string {
	var matched []string
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(keyword)) {
			matched = append(matched, keyword)
		}
	}
	return matched
}

var budgetPattern = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)\s*([kKmM])?`)

// extractBudget pulls the largest dollar amount mentioned in the text, if
// any. Listings often quote several figures; the largest is the closest
// thing to a project budget.
func extractBudget(text string) *float64 {
	matches := budgetPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var best float64
	found := false
	for _, match := range matches {
		raw := strings.ReplaceAll(match[1], ",", "")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(match[2]) {
		case "k":
			value *= 1_000
		case "m":
			value *= 1_000_000
		}
		if !found || value > best {
			best = value
			found = true
		}
	}

	if !found {
		return nil
	}
	return &best
}
