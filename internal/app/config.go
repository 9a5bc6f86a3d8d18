package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/idobetesh/papertrail/core/config"
	coredatabase "github.com/idobetesh/papertrail/core/database"
)

// Storage backend modes.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// StorageConfig selects the session storage backend.
type StorageConfig struct {
	Mode string `yaml:"mode" envconfig:"STORAGE_MODE"`
}

// FlowsConfig tunes the wizard engine.
type FlowsConfig struct {
	SessionTTLMinutes    int    `yaml:"session_ttl_minutes" envconfig:"FLOW_SESSION_TTL_MINUTES"`
	DedupTTLHours        int    `yaml:"dedup_ttl_hours" envconfig:"FLOW_DEDUP_TTL_HOURS"`
	DailyLimit           int    `yaml:"daily_limit" envconfig:"FLOW_DAILY_LIMIT"`
	QuotaTimezone        string `yaml:"quota_timezone" envconfig:"FLOW_QUOTA_TIMEZONE"`
	PurgeIntervalMinutes int    `yaml:"purge_interval_minutes" envconfig:"FLOW_PURGE_INTERVAL_MINUTES"`
	PurgeBatch           int    `yaml:"purge_batch" envconfig:"FLOW_PURGE_BATCH"`
}

// SessionTTL returns the sliding idle timeout for wizard sessions.
func (f FlowsConfig) SessionTTL() time.Duration {
	return time.Duration(f.SessionTTLMinutes) * time.Minute
}

// DedupTTL returns the retention window for processed callback ids.
func (f FlowsConfig) DedupTTL() time.Duration {
	return time.Duration(f.DedupTTLHours) * time.Hour
}

// PurgeInterval returns the background cleanup cadence.
func (f FlowsConfig) PurgeInterval() time.Duration {
	return time.Duration(f.PurgeIntervalMinutes) * time.Minute
}

// Location resolves the quota timezone.
func (f FlowsConfig) Location() (*time.Location, error) {
	return time.LoadLocation(f.QuotaTimezone)
}

// BusinessConfig holds the landlord identity stamped on documents.
type BusinessConfig struct {
	Name        string   `yaml:"name" envconfig:"BUSINESS_NAME"`
	SeedTenants []string `yaml:"seed_tenants"`
}

// Config is the full application configuration: the reusable core plus
// papertrail's own sections.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Storage  StorageConfig       `yaml:"storage"`
	Flows    FlowsConfig         `yaml:"flows"`
	Business BusinessConfig      `yaml:"business"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return err
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Storage.Mode))
	if mode == "" {
		mode = StorageMemory
	}
	switch mode {
	case StorageMemory:
	case StoragePostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			return fmt.Errorf("database host, name and user are required when storage.mode is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.mode %q; allowed: memory, postgres", cfg.Storage.Mode)
	}
	cfg.Storage.Mode = mode

	if cfg.Flows.SessionTTLMinutes <= 0 {
		cfg.Flows.SessionTTLMinutes = 30
	}
	if cfg.Flows.DedupTTLHours <= 0 {
		cfg.Flows.DedupTTLHours = 24
	}
	if cfg.Flows.DailyLimit <= 0 {
		cfg.Flows.DailyLimit = 5
	}
	if strings.TrimSpace(cfg.Flows.QuotaTimezone) == "" {
		cfg.Flows.QuotaTimezone = "UTC"
	}
	if _, err := cfg.Flows.Location(); err != nil {
		return fmt.Errorf("invalid flows.quota_timezone %q: %w", cfg.Flows.QuotaTimezone, err)
	}
	if cfg.Flows.PurgeIntervalMinutes <= 0 {
		cfg.Flows.PurgeIntervalMinutes = 10
	}
	if cfg.Flows.PurgeBatch <= 0 {
		cfg.Flows.PurgeBatch = 500
	}

	if strings.TrimSpace(cfg.Business.Name) == "" {
		cfg.Business.Name = "Papertrail"
	}
	return nil
}
