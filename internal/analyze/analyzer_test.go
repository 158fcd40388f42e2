package analyze

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

type stubScorer struct {
	response string
	err      error
	calls    int
}

func (s *stubScorer) Score(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.response, s.err
}

var testClock = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestAnalyzer(scorer service.Scorer) *Analyzer {
	return New(scorer, model.DefaultBandThresholds(),
		WithClock(testClock),
		WithRetryOptions(fastRetry()))
}

func testRecord() *model.ListingRecord {
	return &model.ListingRecord{
		ID:            "listing-1",
		Title:         "Website redesign RFP",
		Institution:   "Example University",
		ExtractedText: "Full redesign of the university website.",
		UpdatedAt:     testClock(),
	}
}

func TestAnalyzer_ValidResponse(t *testing.T) {
	scorer := &stubScorer{response: validResponse}
	analyzer := newTestAnalyzer(scorer)

	verdict, err := analyzer.Analyze(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "listing-1", verdict.ListingID)
	assert.Equal(t, model.AnalysisTypeAI, verdict.AnalysisType)
	assert.Equal(t, 85, verdict.Score)
	assert.Equal(t, model.RatingExcellent, verdict.Rating)
	assert.Equal(t, 90, verdict.Confidence)
	assert.Equal(t, testClock(), verdict.AnalyzedAt)
}

func TestAnalyzer_ExplicitRatingTrusted(t *testing.T) {
	// The collaborator's recognized rating wins even when the numeric
	// score maps to a different band.
	scorer := &stubScorer{
		response: `{"fitScore": 85, "fitRating": "poor", "reasoning": "score inflated by boilerplate"}`,
	}
	analyzer := newTestAnalyzer(scorer)

	verdict, err := analyzer.Analyze(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, model.RatingPoor, verdict.Rating)
	assert.Equal(t, 85, verdict.Score)
}

func TestAnalyzer_UnrecognizedRatingDerivedFromScore(t *testing.T) {
	scorer := &stubScorer{
		response: `{"fitScore": 72, "fitRating": "fantastic", "reasoning": "solid fit"}`,
	}
	analyzer := newTestAnalyzer(scorer)

	verdict, err := analyzer.Analyze(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, model.RatingGood, verdict.Rating)
}

func TestAnalyzer_MalformedResponseFallsBack(t *testing.T) {
	scorer := &stubScorer{response: "I refuse to answer in JSON."}
	analyzer := newTestAnalyzer(scorer)

	verdict, err := analyzer.Analyze(context.Background(), testRecord())
	require.NoError(t, err, "a malformed response must not fail the record")

	assert.Equal(t, 25, verdict.Score)
	assert.Equal(t, model.RatingPoor, verdict.Rating)
	assert.Equal(t, 0, verdict.Confidence)
	assert.Contains(t, verdict.RedFlags, "analysis parsing failed")
}

func TestAnalyzer_TransportFailureIsAnError(t *testing.T) {
	scorer := &stubScorer{err: &common.RetryableError{
		Err:       errors.New("connection refused"),
		Retryable: true,
	}}
	analyzer := newTestAnalyzer(scorer)

	_, err := analyzer.Analyze(context.Background(), testRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrScoringFailed)
	assert.Equal(t, 2, scorer.calls, "transport failures are retried")
}

func TestAnalyzer_NonRetryableFailureNotRetried(t *testing.T) {
	scorer := &stubScorer{err: &common.RetryableError{
		Err:       errors.New("invalid api key"),
		Retryable: false,
	}}
	analyzer := newTestAnalyzer(scorer)

	_, err := analyzer.Analyze(context.Background(), testRecord())
	require.Error(t, err)
	assert.Equal(t, 1, scorer.calls)
}

func TestAnalyzer_PromptCapsExtractedText(t *testing.T) {
	record := testRecord()
	record.ExtractedText = string(make([]byte, maxPromptText*2))

	analyzer := newTestAnalyzer(&stubScorer{response: validResponse})
	prompt := analyzer.buildPrompt(record)

	assert.Less(t, len(prompt), maxPromptText+1000)
}
