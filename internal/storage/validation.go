// Package storage provides the data persistence layer for the durable store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bidwatch/bidwatch/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidListing = errors.New("invalid listing")
	ErrInvalidVerdict = errors.New("invalid fit verdict")
	ErrInvalidRun     = errors.New("invalid run record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateListing(listing *model.ListingRecord) error {
	if listing == nil {
		return fmt.Errorf("%w: listing", ErrNilParameter)
	}
	if strings.TrimSpace(listing.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidListing)
	}
	if strings.TrimSpace(listing.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidListing)
	}
	if listing.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing updatedAt", ErrInvalidListing)
	}
	return nil
}

func validateVerdict(verdict *model.FitVerdict) error {
	if verdict == nil {
		return fmt.Errorf("%w: verdict", ErrNilParameter)
	}
	if strings.TrimSpace(verdict.ListingID) == "" {
		return fmt.Errorf("%w: missing listing ID", ErrInvalidVerdict)
	}
	if strings.TrimSpace(verdict.AnalysisType) == "" {
		return fmt.Errorf("%w: missing analysis type", ErrInvalidVerdict)
	}
	if verdict.Score < 0 || verdict.Score > 100 {
		return fmt.Errorf("%w: score %d outside [0,100]", ErrInvalidVerdict, verdict.Score)
	}
	if !model.KnownRatingBand(string(verdict.Rating)) {
		return fmt.Errorf("%w: unknown rating band %q", ErrInvalidVerdict, verdict.Rating)
	}
	return nil
}

func validateRun(run *model.RunRecord) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start timestamp", ErrInvalidRun)
	}
	switch run.Status {
	case model.RunStatusOK, model.RunStatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRun, run.Status)
	}
	return nil
}
