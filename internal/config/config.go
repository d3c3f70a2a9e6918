// Package config holds the server configuration: storage location, research
// defaults, batch and cache tuning. Values load from an optional YAML file
// over built-in defaults; a watcher can hot-reload the tunable subset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Research ResearchConfig `yaml:"research"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Batch    BatchConfig    `yaml:"batch"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig names the MCP server on the wire.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DatabaseConfig locates the embedded store. Changing the path requires a
// restart; the watcher ignores it with a warning.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ResearchConfig carries per-research-type session defaults and the advisory
// lock staleness horizon.
type ResearchConfig struct {
	Deep          TypeDefaults `yaml:"deep"`
	Quick         TypeDefaults `yaml:"quick"`
	LockStaleness string       `yaml:"lock_staleness"`
}

// TypeDefaults are the session defaults for one research type.
type TypeDefaults struct {
	MaxIterations       int     `yaml:"max_iterations"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ScoringConfig carries the default arguments for score_and_prune when the
// caller omits them.
type ScoringConfig struct {
	Threshold float64 `yaml:"threshold"`
	KeepTopN  int     `yaml:"keep_top_n"`
}

// BatchConfig carries the batch operator option defaults.
type BatchConfig struct {
	MaxConcurrency  int  `yaml:"max_concurrency"`
	UseCache        bool `yaml:"use_cache"`
	StopOnError     bool `yaml:"stop_on_error"`
	ContinueOnError bool `yaml:"continue_on_error"`
}

// CacheConfig tunes the per-family TTL caches and the expiry sweeper.
type CacheConfig struct {
	SweepInterval string       `yaml:"sweep_interval"`
	Fact          FamilyConfig `yaml:"fact"`
	Entity        FamilyConfig `yaml:"entity"`
	Citation      FamilyConfig `yaml:"citation"`
	SourceRating  FamilyConfig `yaml:"source_rating"`
	Conflict      FamilyConfig `yaml:"conflict"`
}

// FamilyConfig tunes one cache family.
type FamilyConfig struct {
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
}

// LoggingConfig selects the log destination and level.
type LoggingConfig struct {
	File    string `yaml:"file"`
	Verbose bool   `yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "deep-research",
			Version: "1.0.0",
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Research: ResearchConfig{
			Deep:          TypeDefaults{MaxIterations: 10, ConfidenceThreshold: 0.9},
			Quick:         TypeDefaults{MaxIterations: 3, ConfidenceThreshold: 0.7},
			LockStaleness: "5m",
		},
		Scoring: ScoringConfig{
			Threshold: 6.0,
			KeepTopN:  2,
		},
		Batch: BatchConfig{
			MaxConcurrency:  5,
			UseCache:        true,
			StopOnError:     false,
			ContinueOnError: true,
		},
		Cache: CacheConfig{
			SweepInterval: "60s",
			Fact:          FamilyConfig{TTL: "10m", MaxEntries: 500},
			Entity:        FamilyConfig{TTL: "10m", MaxEntries: 500},
			Citation:      FamilyConfig{TTL: "30m", MaxEntries: 200},
			SourceRating:  FamilyConfig{TTL: "60m", MaxEntries: 1000},
			Conflict:      FamilyConfig{TTL: "5m", MaxEntries: 200},
		},
		Logging: LoggingConfig{},
	}
}

// DefaultDatabasePath is the store location used when no --db flag or config
// entry overrides it.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "research_state.db"
	}
	return filepath.Join(home, ".claude", "mcp-server", "research_state.db")
}

// Load reads configuration from a YAML file over the defaults. A missing
// file returns the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent directories.
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

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Batch.MaxConcurrency < 1 {
		return fmt.Errorf("batch.max_concurrency must be at least 1")
	}
	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 10 {
		return fmt.Errorf("scoring.threshold must be within [0, 10]")
	}
	if c.Scoring.KeepTopN < 0 {
		return fmt.Errorf("scoring.keep_top_n must not be negative")
	}
	for name, td := range map[string]TypeDefaults{"deep": c.Research.Deep, "quick": c.Research.Quick} {
		if td.MaxIterations < 1 {
			return fmt.Errorf("research.%s.max_iterations must be at least 1", name)
		}
		if td.ConfidenceThreshold <= 0 || td.ConfidenceThreshold > 1 {
			return fmt.Errorf("research.%s.confidence_threshold must be within (0, 1]", name)
		}
	}
	return nil
}

// LockStaleness returns the advisory lock staleness horizon.
func (c *Config) LockStaleness() time.Duration {
	return parseDuration(c.Research.LockStaleness, 5*time.Minute)
}

// SweepInterval returns the cache expiry sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.Cache.SweepInterval, 60*time.Second)
}

// GetTTL returns the family's entry lifetime.
func (f FamilyConfig) GetTTL(fallback time.Duration) time.Duration {
	return parseDuration(f.TTL, fallback)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
