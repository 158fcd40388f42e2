package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidwatch/bidwatch/internal/cli"
	"github.com/bidwatch/bidwatch/internal/pipeline"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a full discovery pass: ingest, filter, fetch, analyze, merge, cleanup",
		RunE:  runRun,
	}

	cmd.Flags().String("since", "", "Override the ingestion lower bound (YYYY-MM-DD)")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	return executePass(cmd, false)
}

// executePass runs the pipeline, full or scrape-only, and uploads the
// working store afterwards. A failed pass still uploads so its failure
// marker reaches the ledger; only a transport failure leaves the durable
// state exactly as the previous run uploaded it.
func executePass(cmd *cobra.Command, scrapeOnly bool) error {
	ctx := cmd.Context()

	// The flag is read from the invoking command's own flag set so the
	// run and scrape overrides stay independent.
	sinceValue, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}
	since, err := parseSinceFlag(sinceValue)
	if err != nil {
		return err
	}

	env, err := setupEnv(ctx)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(env, !scrapeOnly)
	if err != nil {
		env.discard()
		return err
	}

	slog.Info(cli.FormatTitle("Starting discovery pass"))

	summary, runErr := pipe.Run(ctx, pipeline.RunOptions{
		Since:      since,
		ScrapeOnly: scrapeOnly,
	})

	if uploadErr := env.finish(ctx); uploadErr != nil {
		if runErr != nil {
			slog.Error("Upload failed after run error", "error", uploadErr)
			return runErr
		}
		return uploadErr
	}

	if runErr != nil {
		return runErr
	}

	content := fmt.Sprintf(`Lower bound:      %s
Items found:      %d
Promising:        %d
Details fetched:  %d
Analyzed:         %d
High-rated:       %d
Merged:           %d`,
		summary.LowerBound.Format("2006-01-02 15:04"),
		summary.ItemsFound,
		summary.ItemsPromising,
		summary.ItemsFetched,
		summary.ItemsAnalyzed,
		summary.HighRatedCount,
		summary.MergedCount)

	fmt.Println(cli.RenderBox("Discovery pass complete", content))
	return nil
}
