package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobtrail_test")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad_AllRequired(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/jobtrail_test", cfg.DatabaseURL)
	assert.Equal(t, 50, cfg.MaxScanResults)
	assert.Equal(t, "http://localhost:3000", cfg.AppURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "missing database URL", unset: "DATABASE_URL"},
		{name: "missing Gemini key", unset: "GEMINI_API_KEY"},
		{name: "missing Google client", unset: "GOOGLE_CLIENT_ID"},
		{name: "missing JWT secret", unset: "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MaxScanResults(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{name: "default", value: "", want: 50},
		{name: "explicit", value: "10", want: 10},
		{name: "clamped to provider cap", value: "500", want: 50},
		{name: "zero is rejected", value: "0", wantErr: true},
		{name: "not a number", value: "many", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("MAX_SCAN_RESULTS", tt.value)

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.MaxScanResults)
		})
	}
}
