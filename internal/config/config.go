package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/buildfarm-dev/farmctl/protocol"
)

// CredentialsPolicy controls how the submit flow sources signing credentials.
type CredentialsPolicy string

const (
	CredentialsRemoteFirst CredentialsPolicy = "remote-first"
	CredentialsLocalOnly   CredentialsPolicy = "local-only"
	CredentialsSkip        CredentialsPolicy = "skip"
)

// S3 configures the artifact upload target.
type S3 struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix,omitempty"`
	Region string `yaml:"region,omitempty"`
}

// Polling configures completion tracking defaults.
type Polling struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
}

// Config is the project configuration loaded from farm.yaml.
type Config struct {
	ProjectID       string            `yaml:"project_id"`
	DefaultPlatform protocol.Platform `yaml:"default_platform,omitempty"`
	FarmURL         string            `yaml:"farm_url"`
	Token           string            `yaml:"-"`
	Credentials     CredentialsPolicy `yaml:"credentials,omitempty"`
	S3              S3                `yaml:"s3,omitempty"`
	Polling         Polling           `yaml:"polling,omitempty"`
}

const (
	defaultFarmURL         = "https://api.buildfarm.dev"
	defaultIntervalSeconds = 10
	defaultTimeoutSeconds  = 1800
)

// Load reads the yaml config and overlays FARM_* environment variables.
// A .env file next to the config is honored when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit config errors are not.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FARM_URL"); v != "" {
		c.FarmURL = v
	}
	if v := os.Getenv("FARM_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("FARM_PROJECT_ID"); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv("FARM_S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
}

func (c *Config) applyDefaults() {
	if c.FarmURL == "" {
		c.FarmURL = defaultFarmURL
	}
	if c.Credentials == "" {
		c.Credentials = CredentialsRemoteFirst
	}
	if c.Polling.IntervalSeconds <= 0 {
		c.Polling.IntervalSeconds = defaultIntervalSeconds
	}
	if c.Polling.TimeoutSeconds <= 0 {
		c.Polling.TimeoutSeconds = defaultTimeoutSeconds
	}
}

// Validate checks required fields and enum values.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("config: project_id is required")
	}
	if c.DefaultPlatform != "" && !c.DefaultPlatform.Known() {
		return fmt.Errorf("config: unknown default_platform %q", c.DefaultPlatform)
	}
	switch c.Credentials {
	case CredentialsRemoteFirst, CredentialsLocalOnly, CredentialsSkip:
	default:
		return fmt.Errorf("config: unknown credentials policy %q", c.Credentials)
	}
	if !strings.HasPrefix(c.FarmURL, "http://") && !strings.HasPrefix(c.FarmURL, "https://") {
		return fmt.Errorf("config: farm_url must be http(s), got %q", c.FarmURL)
	}
	return nil
}

// PollInterval returns the configured tick interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

// PollTimeout returns the configured overall polling window.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Polling.TimeoutSeconds) * time.Second
}

// EnsureSynced rewrites the config file in normalized form when the on-disk
// representation drifted (missing defaults, legacy field order). Returns true
// when the file was rewritten.
func EnsureSynced(path string) (bool, error) {
	cfg, err := Load(path)
	if err != nil {
		return false, err
	}

	normalized, err := yaml.Marshal(cfg)
	if err != nil {
		return false, err
	}

	current, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if string(current) == string(normalized) {
		return false, nil
	}

	if err := os.WriteFile(path, normalized, 0o644); err != nil {
		return false, fmt.Errorf("write normalized config: %w", err)
	}
	return true, nil
}
