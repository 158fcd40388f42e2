package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

type stubFetcher struct {
	details map[string]*model.ListingDetail
	failing map[string]bool
}

func (s *stubFetcher) FetchDetail(_ context.Context, item model.FeedItem) (*model.ListingDetail, error) {
	if s.failing[item.ID] {
		return nil, &common.RetryableError{Err: errors.New("listing page gone"), Retryable: false}
	}
	if detail, ok := s.details[item.ID]; ok {
		return detail, nil
	}
	return &model.ListingDetail{Title: item.Title}, nil
}

type stubExtractor struct {
	failFor string
}

func (s *stubExtractor) Extract(_ context.Context, payload model.AttachmentPayload) (string, error) {
	if payload.Name == s.failFor {
		return "", errors.New("unsupported format")
	}
	return "text of " + payload.Name, nil
}

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
}

func verdictFor(item model.FeedItem) model.PreFilterVerdict {
	return model.PreFilterVerdict{Item: item, Promising: true, Confidence: 0.8}
}

func TestFetchAll_AssemblesRecords(t *testing.T) {
	posted := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 2, 8, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	fetcher := &stubFetcher{details: map[string]*model.ListingDetail{
		"rfp-1": {
			Title:       "Official RFP title",
			Institution: "Example University",
			Description: "Project overview",
			DownloadURL: "https://example.edu/rfp/1/download",
			PostedDate:  &posted,
			DueDate:     &due,
			Attachments: []model.AttachmentPayload{
				{Name: "scope.html", URL: "https://example.edu/rfp/1/scope.html", ContentType: "text/html", Data: []byte("<p>scope</p>")},
			},
		},
	}}

	orchestrator := NewOrchestrator(fetcher, &stubExtractor{}, 2,
		WithClock(func() time.Time { return now }),
		WithRetryOptions(fastRetry()))

	item := model.FeedItem{
		ID:          "rfp-1",
		Title:       "Feed title",
		Link:        "https://example.edu/rfp/1",
		PublishedAt: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
	}
	result := orchestrator.FetchAll(context.Background(), []model.PreFilterVerdict{verdictFor(item)})

	require.Len(t, result.Records, 1)
	require.Empty(t, result.Failed)

	record := result.Records[0]
	assert.Equal(t, "rfp-1", record.ID)
	assert.Equal(t, "Official RFP title", record.Title)
	assert.Equal(t, "Example University", record.Institution)
	assert.Equal(t, "https://example.edu/rfp/1", record.DetailURL)
	assert.Equal(t, "https://example.edu/rfp/1/download", record.DownloadURL)
	assert.True(t, posted.Equal(record.PostedDate), "detail page date wins over the feed date")
	assert.True(t, due.Equal(record.DueDate))
	assert.True(t, now.Equal(record.UpdatedAt))
	require.Len(t, record.Attachments, 1)
	assert.Equal(t, "scope.html", record.Attachments[0].Name)
	assert.Contains(t, record.ExtractedText, "Project overview")
	assert.Contains(t, record.ExtractedText, "text of scope.html")
}

func TestFetchAll_FallsBackToFeedMetadata(t *testing.T) {
	// The detail page supplies no title or posted date, so the feed
	// item's values carry over.
	fetcher := &stubFetcher{details: map[string]*model.ListingDetail{
		"rfp-1": {Institution: "Example University"},
	}}
	orchestrator := NewOrchestrator(fetcher, &stubExtractor{}, 1, WithRetryOptions(fastRetry()))

	published := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	item := model.FeedItem{ID: "rfp-1", Title: "Feed title", Link: "https://example.edu/rfp/1", PublishedAt: published}
	result := orchestrator.FetchAll(context.Background(), []model.PreFilterVerdict{verdictFor(item)})

	require.Len(t, result.Records, 1)
	assert.Equal(t, "Feed title", result.Records[0].Title)
	assert.True(t, published.Equal(result.Records[0].PostedDate))
}

func TestFetchAll_ExtractionFailureKeepsManifest(t *testing.T) {
	fetcher := &stubFetcher{details: map[string]*model.ListingDetail{
		"rfp-1": {
			Title:       "RFP",
			Description: "Overview",
			Attachments: []model.AttachmentPayload{
				{Name: "scan.pdf", ContentType: "application/pdf", Data: []byte{1, 2, 3}},
				{Name: "notes.txt", ContentType: "text/plain", Data: []byte("notes")},
			},
		},
	}}
	orchestrator := NewOrchestrator(fetcher, &stubExtractor{failFor: "scan.pdf"}, 1, WithRetryOptions(fastRetry()))

	item := model.FeedItem{ID: "rfp-1", Title: "RFP", Link: "https://example.edu/rfp/1"}
	result := orchestrator.FetchAll(context.Background(), []model.PreFilterVerdict{verdictFor(item)})

	require.Len(t, result.Records, 1)
	record := result.Records[0]

	// Both attachments stay in the manifest even though one failed to
	// extract.
	assert.Len(t, record.Attachments, 2)
	assert.NotContains(t, record.ExtractedText, "scan.pdf")
	assert.Contains(t, record.ExtractedText, "text of notes.txt")
}

func TestFetchAll_FailedItemsReported(t *testing.T) {
	fetcher := &stubFetcher{failing: map[string]bool{"rfp-bad": true}}
	orchestrator := NewOrchestrator(fetcher, &stubExtractor{}, 2, WithRetryOptions(fastRetry()))

	verdicts := []model.PreFilterVerdict{
		verdictFor(model.FeedItem{ID: "rfp-good", Title: "Good", Link: "https://example.edu/rfp/good"}),
		verdictFor(model.FeedItem{ID: "rfp-bad", Title: "Bad", Link: "https://example.edu/rfp/bad"}),
	}
	result := orchestrator.FetchAll(context.Background(), verdicts)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "rfp-good", result.Records[0].ID)
	assert.Equal(t, []string{"rfp-bad"}, result.Failed)
}

func TestFetchAll_ProgressCallback(t *testing.T) {
	var ticks atomic.Int64
	orchestrator := NewOrchestrator(&stubFetcher{}, &stubExtractor{}, 3,
		WithRetryOptions(fastRetry()),
		WithProgress(func() { ticks.Add(1) }))

	verdicts := make([]model.PreFilterVerdict, 5)
	for i := range verdicts {
		verdicts[i] = verdictFor(model.FeedItem{
			ID:    string(rune('a' + i)),
			Title: "Listing",
			Link:  "https://example.edu/rfp",
		})
	}

	result := orchestrator.FetchAll(context.Background(), verdicts)
	assert.Len(t, result.Records, 5)
	assert.Equal(t, int64(5), ticks.Load())
}
