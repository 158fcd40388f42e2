package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
)

// RecordRun appends a run record to the ledger. Runs are never updated or
// deleted; failed runs carry an error marker and zeroed counts.
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *model.RunRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			started_at, status, error,
			items_found, items_fetched, items_analyzed, high_rated_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt, run.Status, run.Error,
		run.ItemsFound, run.ItemsFetched, run.ItemsAnalyzed, run.HighRatedCount)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil {
		run.ID = id
	}

	return nil
}

// LastRun returns the most recent run record of any status, or
// common.ErrNotFound when the ledger is empty.
func (s *SQLiteStorage) LastRun(ctx context.Context) (*model.RunRecord, error) {
	return s.lastRunWhere(ctx, "")
}

// LastSuccessfulRun returns the most recent completed run. Its timestamp
// is the next run's ingestion lower bound.
func (s *SQLiteStorage) LastSuccessfulRun(ctx context.Context) (*model.RunRecord, error) {
	return s.lastRunWhere(ctx, string(model.RunStatusOK))
}

func (s *SQLiteStorage) lastRunWhere(ctx context.Context, status string) (*model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, started_at, status, error,
		       items_found, items_fetched, items_analyzed, high_rated_count
		FROM runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT 1`

	var run model.RunRecord
	var errMarker sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&run.ID,
		&run.StartedAt, &run.Status, &errMarker, &run.ItemsFound,
		&run.ItemsFetched, &run.ItemsAnalyzed, &run.HighRatedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no runs recorded", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	run.Error = errMarker.String
	return &run, nil
}
