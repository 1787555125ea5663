package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalworks/outreachd/internal/ingest"
)

func init() {
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch deploy logs from the external API and load them",
	Long: `Ingest pages the configured deploy-log API, stages the batch as a
local JSON file, and bulk-loads the log text into the raw-log table
that feeds analysis.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	loader, err := ingest.NewLoader(ingest.Config{
		BaseURL:   cfg.Ingest.BaseURL,
		Token:     cfg.Ingest.Token,
		BatchPath: cfg.Ingest.BatchPath,
		PageSize:  cfg.Ingest.PageSize,
	}, st, logger)
	if err != nil {
		return err
	}

	summary, err := loader.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pages: %d\nfetched: %d\nloaded: %d\nskipped: %d\n",
		summary.Pages, summary.Fetched, summary.Loaded, summary.Skipped)
	return nil
}
