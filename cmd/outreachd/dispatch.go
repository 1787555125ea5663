package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalworks/outreachd/internal/dispatch"
	"github.com/signalworks/outreachd/internal/gmail"
)

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Create external drafts for all PENDING records",
	Long: `Dispatch scans PENDING decision records, obtains a delivery
credential, creates one external draft per record, and reports
per-record outcome counts. The exit status is nonzero when any record
failed.`,
	RunE: runDispatch,
}

func runDispatch(cmd *cobra.Command, args []string) error {
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

	creds := gmail.NewCredentials(gmail.CredentialConfig{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RefreshToken: cfg.Gmail.RefreshToken,
		TokenURL:     cfg.Gmail.TokenURL,
	})
	client := gmail.NewClient("", 30*time.Second)

	dispatcher := dispatch.New(st, creds, client, logger, nil)
	report, err := dispatcher.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created: %d\nfailed: %d\nskipped: %d\n",
		report.Created, report.Failed, report.Skipped)

	if report.Failed > 0 {
		return fmt.Errorf("%d record(s) failed draft creation", report.Failed)
	}
	return nil
}
