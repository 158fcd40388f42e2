// Package cleanup prunes bulk artifacts for low-fit listings while
// preserving audit metadata.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// Options controls one cleanup invocation.
type Options struct {
	// CustomScoreThreshold, when set, takes precedence over the band
	// flags entirely: clean iff score < threshold.
	CustomScoreThreshold   *float64
	DryRun                 bool
	CleanupPoorBand        bool
	CleanupRejectedBand    bool
	PreserveAuditArtifacts bool
}

// Outcome is the cleanup ledger for one invocation. It is written to the
// run report and not required for subsequent runs.
type Outcome struct {
	CleanedRFPs     []string
	PreservedRFPs   []string
	Errors          []string
	TotalConsidered int
}

// Engine decides which records' bulk artifacts can be discarded and
// executes the removals.
type Engine struct {
	store        service.Storage
	artifactRoot string
	auditFiles   map[string]bool
	poorFloor    int
}

// New creates a cleanup engine. auditFiles is the allow-list of filenames
// preserved in every record's artifact directory when audit preservation
// is on; poorFloor is the configured floor of the poor band, used as the
// score safety net.
func New(store service.Storage, artifactRoot string, auditFiles []string, poorFloor int) *Engine {
	allowed := make(map[string]bool, len(auditFiles))
	for _, name := range auditFiles {
		allowed[name] = true
	}
	return &Engine{
		store:        store,
		artifactRoot: artifactRoot,
		auditFiles:   allowed,
		poorFloor:    poorFloor,
	}
}

// Cleanup evaluates every verdict and prunes the records the policy
// selects. Dry runs share the exact decision logic and produce the same
// cleaned/preserved sets without touching the filesystem or the store.
// Per-record I/O errors are collected; the batch never aborts on one
// record's failure.
func (e *Engine) Cleanup(ctx context.Context, verdicts map[string]model.FitVerdict, opts Options) Outcome {
	outcome := Outcome{TotalConsidered: len(verdicts)}

	ids := make([]string, 0, len(verdicts))
	for id := range verdicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		verdict := verdicts[id]

		if !e.shouldClean(verdict, opts) {
			outcome.PreservedRFPs = append(outcome.PreservedRFPs, id)
			continue
		}

		outcome.CleanedRFPs = append(outcome.CleanedRFPs, id)

		if opts.DryRun {
			continue
		}

		if err := e.removeArtifacts(id, opts.PreserveAuditArtifacts); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", id, err))
		}
		if err := e.store.ClearListingPayload(ctx, id); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", id, err))
		}
	}

	slog.Info("Cleanup complete",
		"considered", outcome.TotalConsidered,
		"cleaned", len(outcome.CleanedRFPs),
		"preserved", len(outcome.PreservedRFPs),
		"errors", len(outcome.Errors),
		"dry_run", opts.DryRun)

	return outcome
}

// shouldClean is the policy decision table. A custom threshold wins
// outright; otherwise band flags apply, with the score-floor check as a
// safety net for records whose band and score have drifted out of sync.
func (e *Engine) shouldClean(verdict model.FitVerdict, opts Options) bool {
	if opts.CustomScoreThreshold != nil {
		return float64(verdict.Score) < *opts.CustomScoreThreshold
	}

	if opts.CleanupRejectedBand && verdict.Rating == model.RatingRejected {
		return true
	}
	if opts.CleanupPoorBand && verdict.Rating == model.RatingPoor {
		return true
	}
	if opts.CleanupPoorBand && verdict.Score < e.poorFloor {
		return true
	}
	return false
}

// removeArtifacts deletes bulk files under the record's artifact
// directory. Audit files survive when preservation is on; when it is off
// and nothing remains, the directory itself is removed. Listing metadata
// in the store is never touched here.
func (e *Engine) removeArtifacts(id string, preserveAudit bool) error {
	dir := filepath.Join(e.artifactRoot, id)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read artifact directory: %w", err)
	}

	remaining := 0
	for _, entry := range entries {
		if preserveAudit && e.auditFiles[entry.Name()] {
			remaining++
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			remaining++
			return fmt.Errorf("failed to remove artifact %s: %w", entry.Name(), err)
		}
	}

	if !preserveAudit && remaining == 0 {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("failed to remove artifact directory: %w", err)
		}
	}

	return nil
}
