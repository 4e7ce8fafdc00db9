// Package config provides unified configuration loading for netsweep.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/netsweep/internal/constants"
	"github.com/nvandessel/netsweep/internal/logging"
)

// NetsweepConfig contains all netsweep tool settings. Experiment files are
// not configured here; this is how the tool itself behaves.
type NetsweepConfig struct {
	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store locates the run ledger.
	Store StoreConfig `json:"store" yaml:"store"`

	// Output controls how commands print results.
	Output OutputConfig `json:"output" yaml:"output"`

	// Runner configures simulator execution.
	Runner RunnerConfig `json:"runner" yaml:"runner"`
}

// LoggingConfig configures netsweep's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the run event log in <store dir>/events.jsonl.
	// "trace" additionally logs simulator stdout and stderr.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig locates the project state directory.
type StoreConfig struct {
	// Dir is the state directory, relative to the project root unless absolute.
	Dir string `json:"dir" yaml:"dir"`
}

// OutputConfig sets output defaults.
type OutputConfig struct {
	// Format is the default for expand: table, json, jsonl or yaml.
	Format string `json:"format" yaml:"format"`
}

// RunnerConfig configures the command simulator.
type RunnerConfig struct {
	// Command is the simulator command line, split on whitespace.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Timeout bounds one simulator invocation. Zero means the default.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// StopOnError ends a plan execution at the first failed run.
	StopOnError bool `json:"stop_on_error" yaml:"stop_on_error"`
}

// Default returns a NetsweepConfig with sensible defaults.
func Default() *NetsweepConfig {
	return &NetsweepConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Dir: constants.DirName,
		},
		Output: OutputConfig{
			Format: "table",
		},
		Runner: RunnerConfig{
			Timeout: constants.DefaultRunTimeoutSeconds * time.Second,
		},
	}
}

// DefaultPath returns ~/.netsweep/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.netsweep/config.yaml -> environment variables
func Load() (*NetsweepConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*NetsweepConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Runner.Command = expandEnvVars(config.Runner.Command)

	return config, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *NetsweepConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *NetsweepConfig) Validate() error {
	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Output.Format != "" && !constants.ValidOutputFormats[c.Output.Format] {
		return fmt.Errorf("invalid output format: %s (valid: %s)", c.Output.Format, strings.Join(formatNames(), ", "))
	}

	if c.Runner.Timeout < 0 {
		return fmt.Errorf("runner timeout must be non-negative, got %v", c.Runner.Timeout)
	}

	if strings.TrimSpace(c.Store.Dir) == "" {
		return fmt.Errorf("store dir must not be empty")
	}

	return nil
}

// Keys lists the dot-notation keys understood by Get and Set.
func Keys() []string {
	return []string{
		"logging.level",
		"store.dir",
		"output.format",
		"runner.command",
		"runner.timeout",
		"runner.stop_on_error",
	}
}

// Get retrieves a configuration value by dot-notation key.
func (c *NetsweepConfig) Get(key string) (any, bool) {
	switch key {
	case "logging.level":
		return c.Logging.Level, true
	case "store.dir":
		return c.Store.Dir, true
	case "output.format":
		return c.Output.Format, true
	case "runner.command":
		return c.Runner.Command, true
	case "runner.timeout":
		return c.Runner.Timeout.String(), true
	case "runner.stop_on_error":
		return c.Runner.StopOnError, true
	default:
		return nil, false
	}
}

// Set assigns a configuration value by dot-notation key. The value is
// checked the same way Validate checks it.
func (c *NetsweepConfig) Set(key, value string) error {
	switch key {
	case "logging.level":
		if !logging.ValidLevel(value) {
			return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", value)
		}
		c.Logging.Level = value
	case "store.dir":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("store dir must not be empty")
		}
		c.Store.Dir = value
	case "output.format":
		if !constants.ValidOutputFormats[value] {
			return fmt.Errorf("invalid output format: %s (valid: %s)", value, strings.Join(formatNames(), ", "))
		}
		c.Output.Format = value
	case "runner.command":
		c.Runner.Command = value
	case "runner.timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid duration: %s", value)
		}
		c.Runner.Timeout = d
	case "runner.stop_on_error":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		c.Runner.StopOnError = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *NetsweepConfig) {
	if v := os.Getenv("NETSWEEP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("NETSWEEP_OUTPUT_FORMAT"); v != "" {
		config.Output.Format = v
	}

	if v := os.Getenv("NETSWEEP_RUNNER_COMMAND"); v != "" {
		config.Runner.Command = v
	}

	if v := os.Getenv("NETSWEEP_RUNNER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Runner.Timeout = d
		}
	}
}

func formatNames() []string {
	names := make([]string, 0, len(constants.ValidOutputFormats))
	for f := range constants.ValidOutputFormats {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
