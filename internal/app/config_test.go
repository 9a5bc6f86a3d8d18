package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *Config {
	cfg := &Config{}
	cfg.Core.Telegram.Token = "123:abc"
	return cfg
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := baseConfig()

	require.NoError(t, Normalize(cfg))

	assert.Equal(t, StorageMemory, cfg.Storage.Mode)
	assert.Equal(t, 30*time.Minute, cfg.Flows.SessionTTL())
	assert.Equal(t, 24*time.Hour, cfg.Flows.DedupTTL())
	assert.Equal(t, 5, cfg.Flows.DailyLimit)
	assert.Equal(t, "UTC", cfg.Flows.QuotaTimezone)
	assert.Equal(t, 10*time.Minute, cfg.Flows.PurgeInterval())
	assert.Equal(t, 500, cfg.Flows.PurgeBatch)
	assert.Equal(t, "Papertrail", cfg.Business.Name)
}

func TestNormalizeRejectsUnknownStorageMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Mode = "redis"

	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.mode")
}

func TestNormalizePostgresNeedsDatabase(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Mode = StoragePostgres

	require.Error(t, Normalize(cfg))

	cfg.Database.Host = "localhost"
	cfg.Database.Name = "papertrail"
	cfg.Database.User = "papertrail"
	require.NoError(t, Normalize(cfg))
}

func TestNormalizeRejectsBadTimezone(t *testing.T) {
	cfg := baseConfig()
	cfg.Flows.QuotaTimezone = "Atlantis/Nowhere"

	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota_timezone")
}

func TestLoadReadsYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: "123:abc"
storage:
  mode: memory
flows:
  daily_limit: 2
  quota_timezone: Asia/Jerusalem
business:
  name: "Levi Properties"
  seed_tenants: ["Dana Levi"]
`), 0o644))

	t.Setenv("FLOW_DAILY_LIMIT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	// env wins over the file
	assert.Equal(t, 7, cfg.Flows.DailyLimit)
	assert.Equal(t, "Asia/Jerusalem", cfg.Flows.QuotaTimezone)
	assert.Equal(t, "Levi Properties", cfg.Business.Name)
	assert.Equal(t, []string{"Dana Levi"}, cfg.Business.SeedTenants)
	assert.Equal(t, StorageMemory, cfg.Storage.Mode)
}
