package model

// PreFilterVerdict is the relevance pre-filter's per-item output. It is
// transient: verdicts exist only to decide which items are worth the cost
// of a full detail fetch.
type PreFilterVerdict struct {
	EstimatedBudget   *float64
	Item              FeedItem
	MatchedCategories []string
	RedFlags          []string
	Confidence        float64
	Promising         bool
}
