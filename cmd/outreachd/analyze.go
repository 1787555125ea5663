package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalworks/outreachd/internal/decision"
	"github.com/signalworks/outreachd/internal/genai"
)

var (
	analyzeFile string
	analyzeLead string
	analyzeSave bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "read log lines from this file instead of the store")
	analyzeCmd.Flags().StringVar(&analyzeLead, "lead", "", "lead email address (required with --save)")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist the decision as a PENDING record")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <entity>",
	Short: "Classify an entity's logs and compose an outreach decision",
	Long: `Analyze extracts signals from an entity's raw log lines, classifies
them, and composes outreach email copy.

Examples:
  # Analyze logs already loaded into the store
  outreachd analyze acme-corp

  # Analyze a local log file and persist the decision
  outreachd analyze acme-corp --file deploys.log --save --lead cto@acme.example`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	entity := args[0]
	if analyzeSave && analyzeLead == "" {
		return fmt.Errorf("--save requires --lead")
	}

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

	ctx := cmd.Context()

	var lines []string
	if analyzeFile != "" {
		data, err := os.ReadFile(analyzeFile)
		if err != nil {
			return fmt.Errorf("reading log file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	} else {
		lines, err = st.RawLogLines(ctx, entity)
		if err != nil {
			return fmt.Errorf("reading stored logs: %w", err)
		}
	}

	generator, err := genai.New(genai.Config{
		Provider:  cfg.GenAI.Provider,
		APIKey:    cfg.GenAI.APIKey,
		Model:     cfg.GenAI.Model,
		BaseURL:   cfg.GenAI.BaseURL,
		MaxTokens: cfg.GenAI.MaxTokens,
	})
	if err != nil {
		return err
	}

	composer := decision.NewComposer(generator, logger)
	d, err := composer.Compose(ctx, entity, lines)
	if err != nil {
		return err
	}

	out := struct {
		Entity   string            `json:"entity"`
		Decision decision.Decision `json:"decision"`
		RecordID string            `json:"record_id,omitempty"`
	}{Entity: entity, Decision: d}

	if analyzeSave {
		record, err := st.Create(ctx, d, entity, analyzeLead)
		if err != nil {
			return fmt.Errorf("persisting record: %w", err)
		}
		out.RecordID = record.ID
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
