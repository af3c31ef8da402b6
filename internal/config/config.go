package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the resolved engine configuration.
type Config struct {
	// Policy maps directive names to allowed-source lists. Empty means
	// the validator's built-in conservative default.
	Policy map[string][]string `ignored:"true"`

	ThrowOnViolation   bool    `envconfig:"THROW_ON_VIOLATION" default:"true"`
	StrictCapabilities bool    `envconfig:"STRICT_CAPABILITIES" default:"false"`
	MaxScriptSize      int64   `envconfig:"MAX_SCRIPT_SIZE" default:"1048576"`
	MaxExecutionTimeMS int64   `envconfig:"MAX_EXECUTION_TIME_MS" default:"5000"`
	MaxElements        int64   `envconfig:"MAX_ELEMENTS" default:"10000"`
	MaxListeners       int64   `envconfig:"MAX_LISTENERS" default:"1000"`
	MemoryWarningMB    float64 `envconfig:"MEMORY_WARNING_MB" default:"50"`
	BatchWindowMS      int64   `envconfig:"BATCH_WINDOW_MS" default:"16"`
	MaxBatchSize       int     `envconfig:"MAX_BATCH_SIZE" default:"100"`
	MinFlushIntervalMS int64   `envconfig:"MIN_FLUSH_INTERVAL_MS" default:"4"`
	Debug              bool    `envconfig:"DEBUG" default:"false"`
}

// Options is the caller-facing struct of optionals, merged over the
// resolved defaults. Nil fields keep the default.
type Options struct {
	Policy             map[string][]string
	ThrowOnViolation   *bool
	StrictCapabilities *bool
	MaxScriptSize      *int64
	MaxExecutionTimeMS *int64
	MaxElements        *int64
	MaxListeners       *int64
	MemoryWarningMB    *float64
	BatchWindowMS      *int64
	MaxBatchSize       *int
	MinFlushIntervalMS *int64
	Debug              *bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ThrowOnViolation:   true,
		MaxScriptSize:      1 << 20,
		MaxExecutionTimeMS: 5000,
		MaxElements:        10000,
		MaxListeners:       1000,
		MemoryWarningMB:    50,
		BatchWindowMS:      16,
		MaxBatchSize:       100,
		MinFlushIntervalMS: 4,
	}
}

// Load resolves configuration from UISCRIPT_* environment variables over
// the defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("uiscript", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads from the environment or falls back to defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Apply merges options over the configuration and returns it.
func (c *Config) Apply(opts Options) *Config {
	if opts.Policy != nil {
		c.Policy = opts.Policy
	}
	if opts.ThrowOnViolation != nil {
		c.ThrowOnViolation = *opts.ThrowOnViolation
	}
	if opts.StrictCapabilities != nil {
		c.StrictCapabilities = *opts.StrictCapabilities
	}
	if opts.MaxScriptSize != nil {
		c.MaxScriptSize = *opts.MaxScriptSize
	}
	if opts.MaxExecutionTimeMS != nil {
		c.MaxExecutionTimeMS = *opts.MaxExecutionTimeMS
	}
	if opts.MaxElements != nil {
		c.MaxElements = *opts.MaxElements
	}
	if opts.MaxListeners != nil {
		c.MaxListeners = *opts.MaxListeners
	}
	if opts.MemoryWarningMB != nil {
		c.MemoryWarningMB = *opts.MemoryWarningMB
	}
	if opts.BatchWindowMS != nil {
		c.BatchWindowMS = *opts.BatchWindowMS
	}
	if opts.MaxBatchSize != nil {
		c.MaxBatchSize = *opts.MaxBatchSize
	}
	if opts.MinFlushIntervalMS != nil {
		c.MinFlushIntervalMS = *opts.MinFlushIntervalMS
	}
	if opts.Debug != nil {
		c.Debug = *opts.Debug
	}
	return c
}

// MaxExecutionTime returns the execution deadline as a duration.
func (c *Config) MaxExecutionTime() time.Duration {
	return time.Duration(c.MaxExecutionTimeMS) * time.Millisecond
}

// BatchWindow returns the batch debounce window as a duration.
func (c *Config) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowMS) * time.Millisecond
}

// MinFlushInterval returns the flush rate floor as a duration.
func (c *Config) MinFlushInterval() time.Duration {
	return time.Duration(c.MinFlushIntervalMS) * time.Millisecond
}

// policyFile is the YAML shape of a policy override file.
type policyFile struct {
	Policy map[string][]string `yaml:"policy"`
}

// LoadPolicyFile reads a YAML policy override file into a directive map.
func LoadPolicyFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	if len(pf.Policy) == 0 {
		return nil, fmt.Errorf("policy file %s defines no directives", path)
	}
	return pf.Policy, nil
}
