package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bidwatch/bidwatch/internal/cleanup"
	"github.com/bidwatch/bidwatch/internal/cli"
	"github.com/bidwatch/bidwatch/internal/model"
)

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune bulk artifacts for low-fit listings",
		Long: `Evaluate the retention policy against stored fit verdicts and remove
bulk artifacts (attachments, extracted text) for listings the policy
selects. Listing metadata and audit artifacts always survive.`,
		RunE: runCleanup,
	}

	cmd.Flags().Int("days", 0, "Only consider listings posted more than N days ago")
	cmd.Flags().Bool("dry-run", false, "Report what would be cleaned without deleting anything")
	cmd.Flags().Float64("score-threshold", 0, "Clean everything below this score, ignoring band flags")
	_ = viper.BindPFlag("cleanup.days", cmd.Flags().Lookup("days"))
	_ = viper.BindPFlag("cleanup.dry_run", cmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("cleanup.score_threshold", cmd.Flags().Lookup("score-threshold"))

	return cmd
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	env, err := setupEnv(ctx)
	if err != nil {
		return err
	}

	verdicts, err := env.store.ListFitVerdicts(ctx, model.AnalysisTypeAI)
	if err != nil {
		env.discard()
		return err
	}

	days := viper.GetInt("cleanup.days")
	if days > 0 {
		verdicts, err = filterByAge(ctx, env, verdicts, days)
		if err != nil {
			env.discard()
			return err
		}
	}

	opts := cleanup.Options{
		CustomScoreThreshold:   env.cfg.Retention.CustomScoreThreshold,
		DryRun:                 viper.GetBool("cleanup.dry_run"),
		CleanupPoorBand:        env.cfg.Retention.CleanupPoorBand,
		CleanupRejectedBand:    env.cfg.Retention.CleanupRejectedBand,
		PreserveAuditArtifacts: env.cfg.Retention.PreserveAuditArtifacts,
	}
	if cmd.Flags().Changed("score-threshold") {
		threshold := viper.GetFloat64("cleanup.score_threshold")
		opts.CustomScoreThreshold = &threshold
	}

	outcome := newCleaner(env).Cleanup(ctx, verdicts, opts)

	if opts.DryRun {
		env.discard()
	} else if err := env.finish(ctx); err != nil {
		return err
	}

	title := "Cleanup complete"
	if opts.DryRun {
		title = "Cleanup (dry run)"
	}

	content := fmt.Sprintf(`Considered:  %d
Cleaned:     %d
Preserved:   %d
Errors:      %d`,
		outcome.TotalConsidered,
		len(outcome.CleanedRFPs),
		len(outcome.PreservedRFPs),
		len(outcome.Errors))
	if len(outcome.Errors) > 0 {
		content += "\n\n" + cli.FormatWarning(strings.Join(outcome.Errors, "\n"))
	}

	fmt.Println(cli.RenderBox(title, content))
	return nil
}

// filterByAge narrows the verdict set to listings posted more than the
// given number of days ago.
func filterByAge(ctx context.Context, env *runtimeEnv, verdicts map[string]model.FitVerdict, days int) (map[string]model.FitVerdict, error) {
	listings, err := env.store.ListListings(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	aged := make(map[string]bool, len(listings))
	for _, listing := range listings {
		if !listing.PostedDate.IsZero() && listing.PostedDate.Before(cutoff) {
			aged[listing.ID] = true
		}
	}

	filtered := make(map[string]model.FitVerdict)
	for id, verdict := range verdicts {
		if aged[id] {
			filtered[id] = verdict
		}
	}
	return filtered, nil
}
