package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "mailcourier-workers", cfg.Kafka.GroupID)
	assert.Equal(t, 8, cfg.Worker.MaxConcurrency)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "devlog", cfg.Transport.Kind)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kafka:
  brokers: ["broker-1:9092", "broker-2:9092"]
  group_id: notifiers
transport:
  kind: smtp
  smtp:
    host: mail.internal
    port: 587
    from: noreply@example.com
server:
  base_url: https://app.example.com
  support_email: help@example.com
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "notifiers", cfg.Kafka.GroupID)
	assert.Equal(t, "smtp", cfg.Transport.Kind)
	assert.Equal(t, 587, cfg.Transport.SMTP.Port)
	assert.Equal(t, "https://app.example.com", cfg.Server.BaseURL)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no brokers",
			mutate:  func(c *Config) { c.Kafka.Brokers = nil },
			wantErr: "broker",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Transport.Kind = "carrier-pigeon" },
			wantErr: "unknown kind",
		},
		{
			name:    "smtp without host",
			mutate:  func(c *Config) { c.Transport.Kind = "smtp" },
			wantErr: "smtp host",
		},
		{
			name:    "postmark without token",
			mutate:  func(c *Config) { c.Transport.Kind = "postmark" },
			wantErr: "server_token",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Worker.MaxConcurrency = 0 },
			wantErr: "max_concurrency",
		},
		{
			name:    "zero retry budget",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
