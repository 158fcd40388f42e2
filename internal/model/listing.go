// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Attachment describes one document attached to a listing, as recorded in
// the listing's attachment manifest. The payload itself lives on disk (or
// has already been pruned); the manifest survives cleanup.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
	Size        int64
}

// ListingRecord is the durable entity for a procurement listing. It is
// created when a detail fetch succeeds and updated whenever a newer pass
// observes the same identifier. The pipeline never deletes a ListingRecord;
// only its bulk payload (attachments, extracted text) may be pruned.
type ListingRecord struct {
	PostedDate    time.Time
	DueDate       time.Time
	UpdatedAt     time.Time
	ID            string
	Title         string
	Institution   string
	DetailURL     string
	DownloadURL   string
	ExtractedText string
	Attachments   []Attachment
}

// AttachmentPayload is an opaque attachment body as returned by a detail
// fetch, before text extraction. Never persisted as-is.
type AttachmentPayload struct {
	Name        string
	URL         string
	ContentType string
	Data        []byte
}

// ListingDetail is the result of fetching full detail for a promising
// candidate from the external fetch collaborator.
type ListingDetail struct {
	PostedDate  *time.Time
	DueDate     *time.Time
	Title       string
	Institution string
	Description string
	DownloadURL string
	Attachments []AttachmentPayload
}

// GenerateListingID derives a stable identifier from a listing's canonical
// detail URL, for feeds that do not supply a usable GUID.
func GenerateListingID(detailURL string) string {
	hash := sha256.Sum256([]byte(detailURL))
	return fmt.Sprintf("%x", hash[:8])
}
