package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/jobtrail/internal/classify"
	"github.com/jonathan/jobtrail/internal/config"
	"github.com/jonathan/jobtrail/internal/db"
	"github.com/jonathan/jobtrail/internal/llm"
	"github.com/jonathan/jobtrail/internal/mailbox"
	"github.com/jonathan/jobtrail/internal/scan"
	"github.com/jonathan/jobtrail/internal/token"
)

var (
	scanOwner      string
	scanMaxResults int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle for an owner",
	Long:  "Run one mailbox scan cycle for the given owner and print the resulting counts as JSON. The owner must already have a mailbox connected.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanOwner, "owner", "", "Owner ID (UUID, required)")
	scanCmd.Flags().IntVar(&scanMaxResults, "max-results", 0, "Cap on candidate messages for this cycle (1-50, 0 = default)")
	_ = scanCmd.MarkFlagRequired("owner")

	rootCmd.AddCommand(scanCmd)
}

func runScan(_ *cobra.Command, _ []string) error {
	ownerID, err := uuid.Parse(scanOwner)
	if err != nil {
		return fmt.Errorf("invalid --owner: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	llmClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, llm.DefaultModel)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer func() { _ = llmClient.Close() }()

	tokens := token.NewStore(database, cfg.GoogleClientID, cfg.GoogleClientSecret, nil)
	mail := mailbox.NewClient(&mailbox.Options{MaxResults: cfg.MaxScanResults})
	pipeline := scan.NewPipeline(tokens, mail, classify.New(llmClient), database, nil)

	result, err := pipeline.Run(ctx, ownerID, scanMaxResults)
	if err != nil {
		return fmt.Errorf("scan cycle failed: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
