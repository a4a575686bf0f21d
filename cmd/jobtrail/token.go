package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/jobtrail/internal/config"
	"github.com/jonathan/jobtrail/internal/server"
)

var (
	tokenOwner string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local development",
	Long:  "Mint a signed bearer token for the given owner, for driving the API locally. Production tokens come from the dashboard's auth system.",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "Owner ID (UUID, required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("owner")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, _ []string) error {
	ownerID, err := uuid.Parse(tokenOwner)
	if err != nil {
		return fmt.Errorf("invalid --owner: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	signed, err := server.NewJWTService(cfg.JWTSecret).GenerateToken(ownerID, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Println(signed)
	return nil
}
