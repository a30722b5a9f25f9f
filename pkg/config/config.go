// Package config provides the unified configuration for opentrack. One typed
// Config is loaded once at startup from an optional YAML file with
// environment-variable overrides, validated, and injected into the
// destination registry. Destinations never read the environment themselves.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Retry    RetryConfig    `mapstructure:"retry"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	CRM      CRMConfig      `mapstructure:"crm"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// RetryConfig is the shared retry budget. MaxAttempts counts retries after
// the initial call. Destinations with a tighter delay cap override MaxDelay;
// the retry budget applies everywhere.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// BigQueryConfig configures the warehouse destination
type BigQueryConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ProjectID       string `mapstructure:"project_id"`
	Dataset         string `mapstructure:"dataset"`
	Location        string `mapstructure:"location"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// WebhookConfig configures the generic webhook destination
type WebhookConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	URL          string `mapstructure:"url"`
	SharedSecret string `mapstructure:"shared_secret"`
}

// CRMConfig configures the CRM destination
type CRMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Load reads the configuration from the given YAML file (optional; pass ""
// for environment-only configuration) with OPENTRACK_* environment overrides,
// e.g. OPENTRACK_BIGQUERY_PROJECT_ID.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("OPENTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
	v.SetDefault("logging.development", false)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)

	// Every key gets a default so environment-only values are visible to
	// Unmarshal; viper ignores env vars for keys it has never seen.
	v.SetDefault("bigquery.enabled", false)
	v.SetDefault("bigquery.project_id", "")
	v.SetDefault("bigquery.dataset", "analytics")
	v.SetDefault("bigquery.location", "US")
	v.SetDefault("bigquery.credentials_file", "")

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.shared_secret", "")

	v.SetDefault("crm.enabled", false)
	v.SetDefault("crm.base_url", "")
	v.SetDefault("crm.api_key", "")
}

// Validate checks that every enabled destination has the settings it needs.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry.initial_delay must be positive")
	}

	if c.BigQuery.Enabled {
		if c.BigQuery.ProjectID == "" {
			return fmt.Errorf("bigquery.project_id is required when bigquery is enabled")
		}
		if c.BigQuery.Dataset == "" {
			return fmt.Errorf("bigquery.dataset is required when bigquery is enabled")
		}
	}

	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}

	if c.CRM.Enabled {
		if c.CRM.BaseURL == "" {
			return fmt.Errorf("crm.base_url is required when crm is enabled")
		}
		if c.CRM.APIKey == "" {
			return fmt.Errorf("crm.api_key is required when crm is enabled")
		}
	}

	return nil
}
