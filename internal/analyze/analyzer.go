// Package analyze scores fetched listings against the business profile by
// delegating to the external scoring collaborator and normalizing its
// output into a fit verdict.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// Fallback verdict constants, substituted when the collaborator's response
// does not validate. The pipeline must never abort a run because one
// record's analysis payload was malformed.
const (
	fallbackScore      = 25
	fallbackConfidence = 0
	fallbackRedFlag    = "analysis parsing failed"
)

// Prompt text is capped so oversized extracted documents cannot blow the
// collaborator's context window.
const maxPromptText = 20000

// Analyzer turns a listing record into a fit verdict.
type Analyzer struct {
	scorer    service.Scorer
	clock     func() time.Time
	bands     model.BandThresholds
	retryOpts service.RetryOptions
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(a *Analyzer) {
		a.clock = clock
	}
}

// WithRetryOptions overrides the external-call retry policy.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(a *Analyzer) {
		a.retryOpts = opts
	}
}

// New creates an analyzer over the given scorer and band thresholds.
func New(scorer service.Scorer, bands model.BandThresholds, opts ...Option) *Analyzer {
	analyzer := &Analyzer{
		scorer: scorer,
		clock:  time.Now,
		bands:  bands,
	}
	for _, opt := range opts {
		opt(analyzer)
	}
	return analyzer
}

// Analyze scores one listing. A transport failure after retries is
// returned as an error and the caller skips the item; a malformed response
// degrades to the fixed fallback verdict with a nil error.
func (a *Analyzer) Analyze(ctx context.Context, record *model.ListingRecord) (model.FitVerdict, error) {
	prompt := a.buildPrompt(record)

	var raw string
	err := common.WithRetry(ctx, func() error {
		var scoreErr error
		raw, scoreErr = a.scorer.Score(ctx, prompt)
		return scoreErr
	}, a.retryOpts)
	if err != nil {
		return model.FitVerdict{}, fmt.Errorf("%w: listing %s: %v", common.ErrScoringFailed, record.ID, err)
	}

	parsed := ParseScoreResponse(raw)
	if parsed.Malformed() {
		slog.Warn("Scorer returned malformed response, using fallback verdict",
			"listing_id", record.ID,
			"response_length", len(parsed.Raw))
		return a.fallbackVerdict(record.ID), nil
	}

	return a.normalize(record.ID, parsed.Response), nil
}

// normalize applies the band precedence rule: an explicit recognized
// rating from the collaborator is trusted; otherwise the band derives from
// the numeric score under the configured cut points.
func (a *Analyzer) normalize(listingID string, response *ScoreResponse) model.FitVerdict {
	rating := model.RatingBand(strings.ToLower(response.FitRating))
	if !model.KnownRatingBand(string(rating)) {
		rating = a.bands.RatingForScore(response.FitScore)
	}

	return model.FitVerdict{
		ListingID:       listingID,
		AnalysisType:    model.AnalysisTypeAI,
		Score:           response.FitScore,
		Rating:          rating,
		Confidence:      response.Confidence,
		Reasoning:       response.Reasoning,
		Recommendation:  response.Recommendation,
		InstitutionType: response.InstitutionType,
		ProjectType:     response.ProjectType,
		BudgetEstimate:  response.BudgetEstimate,
		KeyRequirements: response.KeyRequirements,
		Technologies:    response.Technologies,
		RedFlags:        response.RedFlags,
		Opportunities:   response.Opportunities,
		AnalyzedAt:      a.clock(),
	}
}

func (a *Analyzer) fallbackVerdict(listingID string) model.FitVerdict {
	return model.FitVerdict{
		ListingID:    listingID,
		AnalysisType: model.AnalysisTypeAI,
		Score:        fallbackScore,
		Rating:       model.RatingPoor,
		Confidence:   fallbackConfidence,
		Reasoning:    "Scoring collaborator returned a response that could not be parsed.",
		RedFlags:     []string{fallbackRedFlag},
		AnalyzedAt:   a.clock(),
	}
}

func (a *Analyzer) buildPrompt(record *model.ListingRecord) string {
	text := record.ExtractedText
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}

	var b strings.Builder
	b.WriteString("Score this procurement listing for fit against our business profile.\n")
	b.WriteString("Respond with only a JSON object: {\"fitScore\": int 0-100, \"fitRating\": ")
	b.WriteString("\"excellent\"|\"good\"|\"poor\"|\"rejected\", \"reasoning\": string, ")
	b.WriteString("\"keyRequirements\": [string], \"budgetEstimate\": string, ")
	b.WriteString("\"technologies\": [string], \"institutionType\": string, ")
	b.WriteString("\"projectType\": string, \"redFlags\": [string], ")
	b.WriteString("\"opportunities\": [string], \"recommendation\": string, ")
	b.WriteString("\"confidence\": int 0-100}\n\n")
	fmt.Fprintf(&b, "Title: %s\n", record.Title)
	fmt.Fprintf(&b, "Institution: %s\n", record.Institution)
	if !record.PostedDate.IsZero() {
		fmt.Fprintf(&b, "Posted: %s\n", record.PostedDate.Format("2006-01-02"))
	}
	if !record.DueDate.IsZero() {
		fmt.Fprintf(&b, "Due: %s\n", record.DueDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "\nExtracted content:\n%s\n", text)
	return b.String()
}
