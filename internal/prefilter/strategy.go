package prefilter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// ClassifierStrategy scores a single feed item for relevance. Two
// implementations exist: the keyword heuristic and an external classifier
// that wraps its own fallback to the heuristic. Selection happens at
// construction from configuration, not by catching errors at call sites.
type ClassifierStrategy interface {
	Classify(ctx context.Context, item model.FeedItem) (model.PreFilterVerdict, error)
}

// ExternalClassifier delegates scoring to the external collaborator and
// falls back to the heuristic when the collaborator errors or returns a
// response that does not validate.
type ExternalClassifier struct {
	scorer   service.Scorer
	fallback *HeuristicClassifier
}

// NewExternalClassifier creates an external classifier with the mandatory
// heuristic fallback.
func NewExternalClassifier(scorer service.Scorer, fallback *HeuristicClassifier) *ExternalClassifier {
	return &ExternalClassifier{
		scorer:   scorer,
		fallback: fallback,
	}
}

// externalVerdict is the strict shape the external classifier must emit.
type externalVerdict struct {
	EstimatedBudget *float64 `json:"estimatedBudget"`
	Categories      []string `json:"categories"`
	RedFlags        []string `json:"redFlags"`
	Confidence      float64  `json:"confidence"`
	Promising       bool     `json:"promising"`
}

// Classify asks the external collaborator for a verdict and validates its
// shape. Any failure degrades to the heuristic verdict for the same item.
func (c *ExternalClassifier) Classify(ctx context.Context, item model.FeedItem) (model.PreFilterVerdict, error) {
	raw, err := c.scorer.Score(ctx, c.buildPrompt(item))
	if err != nil {
		slog.Warn("External classifier failed, falling back to heuristic",
			"item_id", item.ID,
			"error", err)
		return c.fallback.Classify(ctx, item)
	}

	verdict, err := parseExternalVerdict(raw)
	if err != nil {
		slog.Warn("External classifier returned malformed verdict, falling back to heuristic",
			"item_id", item.ID,
			"error", err)
		return c.fallback.Classify(ctx, item)
	}

	return model.PreFilterVerdict{
		Item:              item,
		Promising:         verdict.Promising && len(verdict.RedFlags) == 0,
		Confidence:        verdict.Confidence,
		MatchedCategories: verdict.Categories,
		EstimatedBudget:   verdict.EstimatedBudget,
		RedFlags:          verdict.RedFlags,
	}, nil
}

func (c *ExternalClassifier) buildPrompt(item model.FeedItem) string {
	var b strings.Builder
	b.WriteString("Assess whether this procurement listing is worth a full detail fetch.\n")
	b.WriteString("Respond with only a JSON object: {\"promising\": bool, \"confidence\": number 0-1, ")
	b.WriteString("\"categories\": [string], \"redFlags\": [string], \"estimatedBudget\": number or null}\n\n")
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Description: %s\n", item.Description)
	if len(item.Categories) > 0 {
		fmt.Fprintf(&b, "Feed categories: %s\n", strings.Join(item.Categories, ", "))
	}
	return b.String()
}

func parseExternalVerdict(raw string) (*externalVerdict, error) {
	cleaned := extractJSONObject(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON object in classifier response")
	}

	var verdict externalVerdict
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&verdict); err != nil {
		return nil, fmt.Errorf("classifier response does not validate: %w", err)
	}

	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("classifier confidence %f outside [0,1]", verdict.Confidence)
	}

	return &verdict, nil
}

// extractJSONObject trims any prose around the first top-level JSON object
// in the response. Language models occasionally wrap JSON in commentary or
// code fences despite instructions.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
