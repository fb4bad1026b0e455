// Package config loads the safety kernel's YAML configuration with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/dualmind"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/immunity"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/sacred"
)

// Config is the root configuration.
type Config struct {
	Immunity immunity.Config `yaml:"immunity"`
	DualMind dualmind.Config `yaml:"dualmind"`
	Sacred   sacred.Config   `yaml:"sacred"`
	Reasoner ReasonerConfig  `yaml:"reasoner"`
	Audit    AuditConfig     `yaml:"audit"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ReasonerConfig selects the verification backend.
type ReasonerConfig struct {
	// Provider is "none" (heuristic verification only) or "gemini".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// AuditConfig controls the SQLite audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig controls the zap logger bootstrap.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Immunity: immunity.DefaultConfig(),
		DualMind: dualmind.DefaultConfig(),
		Sacred:   sacred.DefaultConfig(),
		Reasoner: ReasonerConfig{
			Provider: "none",
			Model:    "gemini-2.5-flash",
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  defaultDBPath(),
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ouroguard.db"
	}
	return filepath.Join(home, ".ouroguard", "audit.db")
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OUROBOROS_API_KEY"); key != "" {
		c.Reasoner.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Reasoner.APIKey == "" {
		c.Reasoner.APIKey = key
	}
	if provider := os.Getenv("OUROBOROS_REASONER"); provider != "" {
		c.Reasoner.Provider = provider
	}
	if model := os.Getenv("OUROBOROS_MODEL"); model != "" {
		c.Reasoner.Model = model
	}
	if path := os.Getenv("OUROBOROS_DB"); path != "" {
		c.Audit.DBPath = path
		c.Audit.Enabled = true
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Reasoner.Provider {
	case "", "none", "gemini":
	default:
		return fmt.Errorf("unknown reasoner provider %q", c.Reasoner.Provider)
	}
	if c.Reasoner.Provider == "gemini" && c.Reasoner.APIKey == "" {
		return fmt.Errorf("gemini reasoner requires an API key")
	}
	if c.Sacred.TamperThreshold < 0 {
		return fmt.Errorf("tamper threshold must not be negative")
	}
	if c.DualMind.CallTimeout < 0 {
		return fmt.Errorf("call timeout must not be negative")
	}
	if c.DualMind.CallTimeout == 0 {
		c.DualMind.CallTimeout = 30 * time.Second
	}
	return nil
}
