package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS listings (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					institution TEXT,
					posted_date DATETIME,
					due_date DATETIME,
					detail_url TEXT NOT NULL,
					download_url TEXT,
					attachments TEXT,
					extracted_text TEXT,
					updated_at DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_listings_updated ON listings(updated_at)`,
				`CREATE INDEX idx_listings_posted ON listings(posted_date)`,

				`CREATE TABLE IF NOT EXISTS fit_verdicts (
					listing_id TEXT NOT NULL,
					analysis_type TEXT NOT NULL,
					score INTEGER NOT NULL,
					rating TEXT NOT NULL,
					confidence INTEGER DEFAULT 0,
					reasoning TEXT,
					recommendation TEXT,
					institution_type TEXT,
					project_type TEXT,
					budget_estimate TEXT,
					key_requirements TEXT,
					technologies TEXT,
					red_flags TEXT,
					opportunities TEXT,
					analyzed_at DATETIME NOT NULL,
					PRIMARY KEY (listing_id, analysis_type),
					FOREIGN KEY (listing_id) REFERENCES listings(id)
				)`,
				`CREATE INDEX idx_fit_verdicts_rating ON fit_verdicts(rating)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Run ledger",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					started_at DATETIME NOT NULL,
					status TEXT NOT NULL,
					error TEXT,
					items_found INTEGER DEFAULT 0,
					items_fetched INTEGER DEFAULT 0,
					items_analyzed INTEGER DEFAULT 0,
					high_rated_count INTEGER DEFAULT 0
				)`,
				`CREATE INDEX idx_runs_started ON runs(started_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
