package model

import "time"

// FeedItem is one entry from the discovery feed, before any detail fetch.
// Items are produced fresh on every ingestion pass and never persisted;
// the identifier is stable within the feed but may repeat across runs.
type FeedItem struct {
	PublishedAt time.Time
	ID          string
	Title       string
	Description string
	Link        string
	Author      string
	Categories  []string
}
