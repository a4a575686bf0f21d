// Package main provides the entry point for the jobtrail API server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jobtrail",
	Short: "Job-application tracker mailbox ingestion service",
	Long:  "jobtrail scans a connected Gmail inbox for job-application email, classifies each message with Gemini, and records qualifying messages as job entries.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
