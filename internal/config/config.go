// Package config handles configuration loading for the sentinel
// coordinator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the complete coordinator configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Policy   PolicyConfig   `yaml:"policy"`
	Learning LearningConfig `yaml:"learning"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PolicyConfig holds the threshold ladder and the configurable rules.
type PolicyConfig struct {
	Thresholds engine.Thresholds   `yaml:"thresholds"`
	Rules      []engine.RuleConfig `yaml:"rules" validate:"dive"`
}

// LearningConfig holds feedback loop tuning parameters.
type LearningConfig struct {
	TuneSchedule     string        `yaml:"tune_schedule"` // cron expression
	DriftHorizon     time.Duration `yaml:"drift_horizon"`
	MinApprovals     uint64        `yaml:"min_approvals"`
	PromotionScore   float64       `yaml:"promotion_score" validate:"gte=0,lte=1"`
	ApplyAdjustments bool          `yaml:"apply_adjustments"`
}

// StorageConfig holds the persistence DSNs. Empty DSNs disable the
// corresponding backend.
type StorageConfig struct {
	ClickHouseDSN  string `yaml:"clickhouse_dsn"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	FeatureDBPath  string `yaml:"feature_db_path"`
	FeatureWindows int    `yaml:"feature_windows" validate:"gte=0"`
}

// APIKey is one accepted client credential. The hash is a bcrypt hash
// of the full key; the prefix (first 8 chars) indexes the lookup.
type APIKey struct {
	Prefix string `yaml:"prefix" validate:"required,len=8"`
	Hash   string `yaml:"hash" validate:"required"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Keys     []APIKey      `yaml:"keys" validate:"dive"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the day-zero configuration: default thresholds and
// the seven stock deterministic rules. Rules without a threshold
// are intentionally inert until an operator sets one.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Policy: PolicyConfig{
			Thresholds: engine.DefaultThresholds(),
			Rules: []engine.RuleConfig{
				{Tripwire: "ssh_burst", Enabled: true, Threshold: 10, Description: "SSH burst detection"},
				{Tripwire: "new_high_risk_listener", Enabled: true, Description: "New listener on high-risk port"},
				{Tripwire: "sudoers_change", Enabled: true, Description: "Change to sudoers or firewall"},
				{Tripwire: "unsigned_binary_execution", Enabled: true, Description: "Unsigned binary execution"},
				{Tripwire: "outbound_non_whitelist", Enabled: true, Description: "Outbound to non-whitelisted ASN/TLD"},
				{Tripwire: "dns_high_entropy", Enabled: true, Description: "DNS to newly observed high entropy domain"},
				{Tripwire: "daemon_restart", Enabled: true, Description: "Daemon restarts outside maintenance window"},
			},
		},
		Learning: LearningConfig{
			TuneSchedule:     "@every 5m",
			DriftHorizon:     10 * time.Minute,
			MinApprovals:     3,
			PromotionScore:   0.7,
			ApplyAdjustments: true,
		},
		Storage: StorageConfig{
			FeatureDBPath:  "sentinel.db",
			FeatureWindows: 512,
		},
		Auth: AuthConfig{
			CacheTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, applies environment overrides and
// validates the result. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments inject secrets without writing
// them to the config file.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		cfg.Storage.ClickHouseDSN = dsn
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks struct tags plus the threshold ladder ordering.
// Malformed ladders are rejected here, before they can reach the
// engine.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Policy.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
