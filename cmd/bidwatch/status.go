package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bidwatch/bidwatch/internal/cli"
	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show durable store contents and the last run",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	env, err := setupEnv(ctx)
	if err != nil {
		return err
	}
	defer env.discard()

	count, err := env.store.ListingCount(ctx)
	if err != nil {
		return err
	}

	verdicts, err := env.store.ListFitVerdicts(ctx, model.AnalysisTypeAI)
	if err != nil {
		return err
	}

	highRated := 0
	for _, verdict := range verdicts {
		if verdict.Rating == model.RatingExcellent || verdict.Rating == model.RatingGood {
			highRated++
		}
	}

	lastRunLine := "never"
	lastRun, err := env.store.LastRun(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return err
	default:
		lastRunLine = fmt.Sprintf("%s (%s)", lastRun.StartedAt.Format("2006-01-02 15:04"), lastRun.Status)
		if lastRun.Status == model.RunStatusFailed && lastRun.Error != "" {
			lastRunLine += ": " + lastRun.Error
		}
	}

	content := fmt.Sprintf(`Listings tracked:  %d
Verdicts:          %d
High-rated:        %d
Last run:          %s`,
		count, len(verdicts), highRated, lastRunLine)

	fmt.Println(cli.RenderBox("Store status", content))
	return nil
}
