package main

import (
	"github.com/spf13/cobra"
)

func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Discover and fetch listings without analysis or cleanup",
		RunE:  runScrape,
	}

	cmd.Flags().String("since", "", "Override the ingestion lower bound (YYYY-MM-DD)")

	return cmd
}

func runScrape(cmd *cobra.Command, _ []string) error {
	return executePass(cmd, true)
}
