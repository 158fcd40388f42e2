package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
)

// SaveListing inserts or replaces a listing row. Callers that need the
// newest-wins guarantee go through the merge engine, which reads the
// existing row first; SaveListing itself is a plain upsert.
func (s *SQLiteStorage) SaveListing(ctx context.Context, listing *model.ListingRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateListing(listing); err != nil {
		return err
	}

	attachmentsJSON, err := marshalAttachments(listing.Attachments)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (
			id, title, institution, posted_date, due_date,
			detail_url, download_url, attachments, extracted_text, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			institution = excluded.institution,
			posted_date = excluded.posted_date,
			due_date = excluded.due_date,
			detail_url = excluded.detail_url,
			download_url = excluded.download_url,
			attachments = excluded.attachments,
			extracted_text = excluded.extracted_text,
			updated_at = excluded.updated_at
	`, listing.ID, listing.Title, listing.Institution,
		nullableTime(listing.PostedDate), nullableTime(listing.DueDate),
		listing.DetailURL, listing.DownloadURL, attachmentsJSON,
		listing.ExtractedText, listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save listing %s: %w", listing.ID, err)
	}

	return nil
}

// GetListing retrieves a listing by identifier. Returns common.ErrNotFound
// when no row exists.
func (s *SQLiteStorage) GetListing(ctx context.Context, id string) (*model.ListingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, institution, posted_date, due_date,
		       detail_url, download_url, attachments, extracted_text, updated_at
		FROM listings WHERE id = ?
	`, id)

	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: listing %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", id, err)
	}

	return listing, nil
}

// ListListings returns all listings ordered by posted date, newest first.
func (s *SQLiteStorage) ListListings(ctx context.Context) ([]model.ListingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, institution, posted_date, due_date,
		       detail_url, download_url, attachments, extracted_text, updated_at
		FROM listings ORDER BY posted_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var listings []model.ListingRecord
	for rows.Next() {
		listing, scanErr := scanListing(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", scanErr)
		}
		listings = append(listings, *listing)
	}

	return listings, rows.Err()
}

// ListingCount returns the number of listings in the store.
func (s *SQLiteStorage) ListingCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// ClearListingPayload drops a listing's bulk content while preserving its
// metadata row. The cleanup engine calls this after pruning artifacts; the
// listing identifier itself is never removed.
func (s *SQLiteStorage) ClearListingPayload(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE listings SET attachments = NULL, extracted_text = '' WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to clear payload for listing %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check payload clear for listing %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: listing %s", common.ErrNotFound, id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*model.ListingRecord, error) {
	var listing model.ListingRecord
	var institution, downloadURL, attachmentsJSON, extractedText sql.NullString
	var postedDate, dueDate sql.NullTime

	err := row.Scan(&listing.ID, &listing.Title, &institution, &postedDate,
		&dueDate, &listing.DetailURL, &downloadURL, &attachmentsJSON,
		&extractedText, &listing.UpdatedAt)
	if err != nil {
		return nil, err
	}

	listing.Institution = institution.String
	listing.DownloadURL = downloadURL.String
	listing.ExtractedText = extractedText.String
	if postedDate.Valid {
		listing.PostedDate = postedDate.Time
	}
	if dueDate.Valid {
		listing.DueDate = dueDate.Time
	}
	if attachmentsJSON.Valid && attachmentsJSON.String != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON.String), &listing.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachment manifest: %w", err)
		}
	}

	return &listing, nil
}

func marshalAttachments(attachments []model.Attachment) (any, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachment manifest: %w", err)
	}
	return string(data), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
