package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/bpf-verify/internal/log"
	"github.com/l3aro/bpf-verify/pkg/partition"
	"github.com/l3aro/bpf-verify/pkg/verifier"
)

// Config holds all configuration for bpfv
type Config struct {
	// Analysis settings
	Simplify         bool `yaml:"simplify" env:"BPFV_SIMPLIFY"`
	MustHaveExit     bool `yaml:"must_have_exit" env:"BPFV_MUST_HAVE_EXIT"`
	CheckTermination bool `yaml:"check_termination" env:"BPFV_CHECK_TERMINATION"`

	// PartitionKeys maps labels ("*" for every other label) to the
	// variables the state is partitioned on
	PartitionKeys map[string][]string `yaml:"partition_keys,omitempty" env:"BPFV_PARTITION_KEYS"`

	// Iteration bounds
	DescendingLimit int `yaml:"descending_limit" env:"BPFV_DESCENDING_LIMIT"`
	MaxPartitions   int `yaml:"max_partitions" env:"BPFV_MAX_PARTITIONS"`

	// Report cache
	CachePath string `yaml:"cache_path" env:"BPFV_CACHE_PATH"`
	CacheSize int    `yaml:"cache_size" env:"BPFV_CACHE_SIZE"`

	// Number of programs verified concurrently
	Parallelism int `yaml:"parallelism" env:"BPFV_PARALLELISM"`

	// Logging
	LogLevel string `yaml:"log_level" env:"BPFV_LOG_LEVEL"`
	Verbose  bool   `yaml:"verbose" env:"BPFV_VERBOSE"`
	JSONLog  bool   `yaml:"json_log" env:"BPFV_JSON_LOG"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Simplify:         true,
		MustHaveExit:     false,
		CheckTermination: false,
		DescendingLimit:  2000000,
		MaxPartitions:    0,
		CachePath:        defaultCachePath(),
		CacheSize:        1024,
		Parallelism:      4,
		LogLevel:         "info",
		Verbose:          false,
		JSONLog:          false,
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".bpfv", "reports.msgpack")
	}
	return filepath.Join(home, ".bpfv", "reports.msgpack")
}

// GlobalConfigFilePath returns the global config file path (~/.bpfv/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bpfv/config.yaml"
	}
	return filepath.Join(home, ".bpfv", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.bpfv/config.yaml)
func ProjectConfigFilePath() string {
	return ".bpfv/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.bpfv/config.yaml)
// 3. Global config (~/.bpfv/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BPFV_SIMPLIFY"); v != "" {
		cfg.Simplify = parseBool(v)
	}
	if v := os.Getenv("BPFV_MUST_HAVE_EXIT"); v != "" {
		cfg.MustHaveExit = parseBool(v)
	}
	if v := os.Getenv("BPFV_CHECK_TERMINATION"); v != "" {
		cfg.CheckTermination = parseBool(v)
	}
	if v := os.Getenv("BPFV_PARTITION_KEYS"); v != "" {
		cfg.PartitionKeys = map[string][]string{partition.Wildcard: splitList(v)}
	}
	if v := os.Getenv("BPFV_DESCENDING_LIMIT"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.DescendingLimit = i
		}
	}
	if v := os.Getenv("BPFV_MAX_PARTITIONS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.MaxPartitions = i
		}
	}
	if v := os.Getenv("BPFV_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("BPFV_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("BPFV_PARALLELISM"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Parallelism = i
		}
	}
	if v := os.Getenv("BPFV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BPFV_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("BPFV_JSON_LOG"); v != "" {
		cfg.JSONLog = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.DescendingLimit <= 0 {
		return fmt.Errorf("descending_limit must be positive")
	}
	if c.MaxPartitions < 0 {
		return fmt.Errorf("max_partitions must be non-negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for label, key := range c.PartitionKeys {
		for _, name := range key {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("partition_keys[%s] contains an empty variable name", label)
			}
		}
	}
	return nil
}

// Level returns the log level, raised to debug when Verbose is set.
func (c *Config) Level() log.Level {
	if c.Verbose {
		return log.DebugLevel
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// VerifierOptions returns the analysis options the configuration selects.
func (c *Config) VerifierOptions() verifier.Options {
	opts := verifier.Options{
		Simplify:         c.Simplify,
		MustHaveExit:     c.MustHaveExit,
		CheckTermination: c.CheckTermination,
		DescendingLimit:  c.DescendingLimit,
		MaxPartitions:    c.MaxPartitions,
	}
	if len(c.PartitionKeys) > 0 {
		opts.PartitionKeys = make(partition.KeyMap, len(c.PartitionKeys))
		for label, key := range c.PartitionKeys {
			opts.PartitionKeys[label] = append([]string(nil), key...)
		}
	}
	return opts
}

// parseBool accepts the spellings the environment commonly uses for true
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseInt attempts to parse a string as int, returning -1 on failure
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}

// splitList splits a comma-separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
