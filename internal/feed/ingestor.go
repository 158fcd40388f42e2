// Package feed ingests the discovery feed and normalizes its entries.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
)

// Ingestor fetches a syndication feed and filters entries by publication
// time. A failure to fetch or parse the feed itself is fatal to the run;
// no partial feed state is usable downstream.
type Ingestor struct {
	parser *gofeed.Parser
	clock  func() time.Time
	url    string
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(i *Ingestor) {
		i.clock = clock
	}
}

// NewIngestor creates an ingestor for the given feed URL.
func NewIngestor(url string, opts ...Option) *Ingestor {
	ingestor := &Ingestor{
		parser: gofeed.NewParser(),
		clock:  time.Now,
		url:    url,
	}
	for _, opt := range opts {
		opt(ingestor)
	}
	return ingestor
}

// FetchSince returns up to maxItems entries published after lowerBound, in
// the order the feed delivers them (descending publication time by feed
// convention; no re-sort). Entries without a parsable publication date are
// treated as published now so they are not silently lost; entries missing
// a title or link are dropped, the only hard per-item rejection.
func (i *Ingestor) FetchSince(ctx context.Context, lowerBound time.Time, maxItems int) ([]model.FeedItem, error) {
	parsed, err := i.parser.ParseURLWithContext(i.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrFeedUnavailable, i.url, err)
	}

	items := make([]model.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if len(items) >= maxItems {
			break
		}

		item, ok := i.normalize(entry)
		if !ok {
			continue
		}

		if !item.PublishedAt.After(lowerBound) {
			continue
		}

		items = append(items, item)
	}

	slog.Info("Feed ingestion complete",
		"feed", i.url,
		"entries", len(parsed.Items),
		"accepted", len(items),
		"lower_bound", lowerBound)

	return items, nil
}

func (i *Ingestor) normalize(entry *gofeed.Item) (model.FeedItem, bool) {
	if entry.Title == "" || entry.Link == "" {
		slog.Warn("Dropping feed entry without title or link",
			"title", entry.Title,
			"link", entry.Link)
		return model.FeedItem{}, false
	}

	id := entry.GUID
	if id == "" {
		id = model.GenerateListingID(entry.Link)
	}

	publishedAt := i.clock()
	switch {
	case entry.PublishedParsed != nil:
		publishedAt = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		publishedAt = *entry.UpdatedParsed
	default:
		// Leniency policy: an absent or unparsable date makes the entry
		// "fresh" rather than dropped.
		slog.Warn("Feed entry has no parsable publication date, defaulting to now",
			"id", id,
			"title", entry.Title)
	}

	description := entry.Description
	if description == "" {
		description = entry.Content
	}

	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
	}

	categories := make([]string, len(entry.Categories))
	copy(categories, entry.Categories)

	return model.FeedItem{
		ID:          id,
		Title:       entry.Title,
		Description: description,
		Link:        entry.Link,
		PublishedAt: publishedAt,
		Author:      author,
		Categories:  categories,
	}, true
}
