// Package config provides configuration loading and validation for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the service configuration read from the environment.
type Config struct {
	// DatabaseURL is the PostgreSQL connection URL.
	DatabaseURL string
	// GeminiAPIKey authenticates against the Gemini API for email classification.
	GeminiAPIKey string

	// Google OAuth client used for the Gmail connection flow and token refresh.
	GoogleClientID     string
	GoogleClientSecret string
	// OAuthRedirectURL is the registered redirect URI for the OAuth callback.
	OAuthRedirectURL string
	// AppURL is where the browser is sent after the OAuth callback completes.
	AppURL string

	// JWTSecret verifies the bearer tokens issued by the dashboard's auth system.
	JWTSecret string

	// MaxScanResults caps how many messages one scan cycle lists from the mailbox.
	MaxScanResults int
}

// Load reads the service configuration from environment variables.
// DATABASE_URL, GEMINI_API_KEY, GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are
// required; the rest have defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		OAuthRedirectURL:   os.Getenv("OAUTH_REDIRECT_URL"),
		AppURL:             os.Getenv("APP_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		MaxScanResults:     50,
	}

	if v := os.Getenv("MAX_SCAN_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SCAN_RESULTS: %v", err)
		}
		cfg.MaxScanResults = n
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalize validates required fields and clamps limits.
func (c *Config) normalize() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required but not set")
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required but not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.AppURL == "" {
		c.AppURL = "http://localhost:3000"
	}
	if c.MaxScanResults < 1 {
		return fmt.Errorf("MAX_SCAN_RESULTS must be at least 1, got: %d", c.MaxScanResults)
	}
	if c.MaxScanResults > 50 {
		c.MaxScanResults = 50
	}
	return nil
}
