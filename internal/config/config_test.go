package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg)

	// Check some default values
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30, cfg.Notifier.HeartbeatIntervalSeconds)
	assert.Equal(t, "LIVEWIRE_WEBHOOK_SECRET", cfg.Webhook.SecretEnv)
	assert.Equal(t, "LIVEWIRE_WEBHOOK_SECRET_NEXT", cfg.Webhook.SecretNextEnv)
	assert.Equal(t, 100, cfg.Webhook.FullPayloadDelay)
	assert.Equal(t, "http://localhost:1337", cfg.CMS.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	// Write a test config file
	testConfig := `server:
  addr: ":9090"
notifier:
  heartbeat_interval_seconds: 5
cms:
  base_url: "http://cms.test:1337"
logging:
  level: "debug"
`
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	// Load the config
	cfg, err := LoadConfigFromFile(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Check the loaded values
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Notifier.HeartbeatIntervalSeconds)
	assert.Equal(t, "http://cms.test:1337", cfg.CMS.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Default values should be used for unspecified fields
	assert.Equal(t, 100, cfg.Webhook.FullPayloadDelay)
	assert.Equal(t, 64, cfg.Notifier.ClientBufferSize)
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	// A missing file falls back to defaults
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfigFromFileInvalid(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	err := os.WriteFile(configFile, []byte("server: [not a mapping"), 0644)
	require.NoError(t, err)

	_, err = LoadConfigFromFile(configFile)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVEWIRE_SERVER_ADDR", ":7070")
	t.Setenv("LIVEWIRE_CMS_BASE_URL", "http://env-cms:1337")
	t.Setenv("LIVEWIRE_HEARTBEAT_INTERVAL_SECONDS", "15")
	t.Setenv("LIVEWIRE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", "", "")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "http://env-cms:1337", cfg.CMS.BaseURL)
	assert.Equal(t, 15, cfg.Notifier.HeartbeatIntervalSeconds)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestFlagOverridesBeatEnv(t *testing.T) {
	t.Setenv("LIVEWIRE_SERVER_ADDR", ":7070")
	t.Setenv("LIVEWIRE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", ":6060", "error")
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, "error", cfg.Logging.Level)
}
