package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
)

// SaveFitVerdict inserts or replaces the current verdict for a
// (listing, analysis type) pair. Verdicts are overwritten on re-analysis,
// never appended as history.
func (s *SQLiteStorage) SaveFitVerdict(ctx context.Context, verdict *model.FitVerdict) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVerdict(verdict); err != nil {
		return err
	}

	lists, err := marshalVerdictLists(verdict)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fit_verdicts (
			listing_id, analysis_type, score, rating, confidence,
			reasoning, recommendation, institution_type, project_type,
			budget_estimate, key_requirements, technologies, red_flags,
			opportunities, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id, analysis_type) DO UPDATE SET
			score = excluded.score,
			rating = excluded.rating,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			recommendation = excluded.recommendation,
			institution_type = excluded.institution_type,
			project_type = excluded.project_type,
			budget_estimate = excluded.budget_estimate,
			key_requirements = excluded.key_requirements,
			technologies = excluded.technologies,
			red_flags = excluded.red_flags,
			opportunities = excluded.opportunities,
			analyzed_at = excluded.analyzed_at
	`, verdict.ListingID, verdict.AnalysisType, verdict.Score, verdict.Rating,
		verdict.Confidence, verdict.Reasoning, verdict.Recommendation,
		verdict.InstitutionType, verdict.ProjectType, verdict.BudgetEstimate,
		lists[0], lists[1], lists[2], lists[3], verdict.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to save verdict for listing %s: %w", verdict.ListingID, err)
	}

	return nil
}

// GetFitVerdict retrieves the current verdict for a listing and analysis
// type. Returns common.ErrNotFound when no verdict exists.
func (s *SQLiteStorage) GetFitVerdict(ctx context.Context, listingID, analysisType string) (*model.FitVerdict, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(listingID, "listingID"); err != nil {
		return nil, err
	}
	if err := validateString(analysisType, "analysisType"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT listing_id, analysis_type, score, rating, confidence,
		       reasoning, recommendation, institution_type, project_type,
		       budget_estimate, key_requirements, technologies, red_flags,
		       opportunities, analyzed_at
		FROM fit_verdicts WHERE listing_id = ? AND analysis_type = ?
	`, listingID, analysisType)

	verdict, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: verdict for listing %s", common.ErrNotFound, listingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict for listing %s: %w", listingID, err)
	}

	return verdict, nil
}

// ListFitVerdicts returns the current verdicts of the given analysis type,
// keyed by listing identifier.
func (s *SQLiteStorage) ListFitVerdicts(ctx context.Context, analysisType string) (map[string]model.FitVerdict, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(analysisType, "analysisType"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_id, analysis_type, score, rating, confidence,
		       reasoning, recommendation, institution_type, project_type,
		       budget_estimate, key_requirements, technologies, red_flags,
		       opportunities, analyzed_at
		FROM fit_verdicts WHERE analysis_type = ?
	`, analysisType)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	verdicts := make(map[string]model.FitVerdict)
	for rows.Next() {
		verdict, scanErr := scanVerdict(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", scanErr)
		}
		verdicts[verdict.ListingID] = *verdict
	}

	return verdicts, rows.Err()
}

func scanVerdict(row rowScanner) (*model.FitVerdict, error) {
	var verdict model.FitVerdict
	var reasoning, recommendation, institutionType, projectType, budgetEstimate sql.NullString
	var keyRequirements, technologies, redFlags, opportunities sql.NullString

	err := row.Scan(&verdict.ListingID, &verdict.AnalysisType, &verdict.Score,
		&verdict.Rating, &verdict.Confidence, &reasoning, &recommendation,
		&institutionType, &projectType, &budgetEstimate, &keyRequirements,
		&technologies, &redFlags, &opportunities, &verdict.AnalyzedAt)
	if err != nil {
		return nil, err
	}

	verdict.Reasoning = reasoning.String
	verdict.Recommendation = recommendation.String
	verdict.InstitutionType = institutionType.String
	verdict.ProjectType = projectType.String
	verdict.BudgetEstimate = budgetEstimate.String

	for _, pair := range []struct {
		dst *[]string
		src sql.NullString
	}{
		{&verdict.KeyRequirements, keyRequirements},
		{&verdict.Technologies, technologies},
		{&verdict.RedFlags, redFlags},
		{&verdict.Opportunities, opportunities},
	} {
		if pair.src.Valid && pair.src.String != "" {
			if err := json.Unmarshal([]byte(pair.src.String), pair.dst); err != nil {
				return nil, fmt.Errorf("failed to decode verdict list: %w", err)
			}
		}
	}

	return &verdict, nil
}

func marshalVerdictLists(verdict *model.FitVerdict) ([4]any, error) {
	var out [4]any
	for i, list := range [][]string{
		verdict.KeyRequirements,
		verdict.Technologies,
		verdict.RedFlags,
		verdict.Opportunities,
	} {
		if len(list) == 0 {
			continue
		}
		data, err := json.Marshal(list)
		if err != nil {
			return out, fmt.Errorf("failed to encode verdict list: %w", err)
		}
		out[i] = string(data)
	}
	return out, nil
}
