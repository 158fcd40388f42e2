// Package fetch obtains full listing detail for promising candidates,
// bounded by a worker pool so network latency overlaps without flooding
// the source.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// Result is the fetch stage's output: the listing records built from
// successful fetches and the identifiers of items that failed after
// retries. Failures are per-item; they never abort the run.
type Result struct {
	Records []model.ListingRecord
	Failed  []string
}

// Orchestrator fans promising candidates out to the detail fetch
// collaborator and assembles listing records from the responses.
type Orchestrator struct {
	fetcher   service.DetailFetcher
	extractor service.TextExtractor
	clock     func() time.Time
	progress  func()
	workers   int
	retryOpts service.RetryOptions
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithProgress installs a callback invoked once per completed item.
func WithProgress(progress func()) Option {
	return func(o *Orchestrator) {
		o.progress = progress
	}
}

// WithRetryOptions overrides the external-call retry policy.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(o *Orchestrator) {
		o.retryOpts = opts
	}
}

// NewOrchestrator creates a fetch orchestrator with the given worker bound.
func NewOrchestrator(fetcher service.DetailFetcher, extractor service.TextExtractor, workers int, opts ...Option) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	orchestrator := &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		clock:     time.Now,
		workers:   workers,
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}

type fetchOutcome struct {
	record *model.ListingRecord
	itemID string
}

// FetchAll fetches detail for every promising verdict. Individual fetches
// run concurrently up to the worker bound; results are collected on a
// single channel so downstream merge input is assembled by one goroutine.
func (o *Orchestrator) FetchAll(ctx context.Context, verdicts []model.PreFilterVerdict) Result {
	items := make(chan model.FeedItem, len(verdicts))
	outcomes := make(chan fetchOutcome, len(verdicts))

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				record, err := o.fetchOne(ctx, item)
				if err != nil {
					slog.Warn("Detail fetch failed, skipping item",
						"item_id", item.ID,
						"error", err)
					outcomes <- fetchOutcome{itemID: item.ID}
				} else {
					outcomes <- fetchOutcome{record: record, itemID: item.ID}
				}
				if o.progress != nil {
					o.progress()
				}
			}
		}()
	}

	for _, verdict := range verdicts {
		items <- verdict.Item
	}
	close(items)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var result Result
	for outcome := range outcomes {
		if outcome.record != nil {
			result.Records = append(result.Records, *outcome.record)
		} else {
			result.Failed = append(result.Failed, outcome.itemID)
		}
	}

	slog.Info("Detail fetch complete",
		"fetched", len(result.Records),
		"failed", len(result.Failed))

	return result
}

func (o *Orchestrator) fetchOne(ctx context.Context, item model.FeedItem) (*model.ListingRecord, error) {
	var detail *model.ListingDetail
	err := common.WithRetry(ctx, func() error {
		var fetchErr error
		detail, fetchErr = o.fetcher.FetchDetail(ctx, item)
		return fetchErr
	}, o.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("fetch detail for %s: %w", item.ID, err)
	}

	record := &model.ListingRecord{
		ID:          item.ID,
		Title:       detail.Title,
		Institution: detail.Institution,
		DetailURL:   item.Link,
		DownloadURL: detail.DownloadURL,
		PostedDate:  item.PublishedAt,
		UpdatedAt:   o.clock(),
	}
	if record.Title == "" {
		record.Title = item.Title
	}
	if detail.PostedDate != nil {
		record.PostedDate = *detail.PostedDate
	}
	if detail.DueDate != nil {
		record.DueDate = *detail.DueDate
	}

	texts := make([]string, 0, len(detail.Attachments)+1)
	if detail.Description != "" {
		texts = append(texts, detail.Description)
	}

	for _, payload := range detail.Attachments {
		record.Attachments = append(record.Attachments, model.Attachment{
			Name:        payload.Name,
			URL:         payload.URL,
			ContentType: payload.ContentType,
			Size:        int64(len(payload.Data)),
		})

		text, extractErr := o.extractor.Extract(ctx, payload)
		if extractErr != nil {
			// The attachment stays in the manifest even when its text
			// cannot be extracted.
			slog.Warn("Attachment extraction failed",
				"item_id", item.ID,
				"attachment", payload.Name,
				"error", extractErr)
			continue
		}
		texts = append(texts, text)
	}

	record.ExtractedText = strings.Join(texts, "\n\n")
	return record, nil
}
