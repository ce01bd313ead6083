package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all validator configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Where data point files live
	Records RecordsConfig `yaml:"records"`

	// External evaluation harness
	Harness HarnessConfig `yaml:"harness"`

	// Per-run scratch space for staged files
	Scratch ScratchConfig `yaml:"scratch"`

	// Validation history database
	History HistoryConfig `yaml:"history"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// RecordsConfig configures the data point loader.
type RecordsConfig struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

// HarnessConfig configures the SWE-bench evaluation harness invocation.
type HarnessConfig struct {
	Python string `yaml:"python"` // interpreter with swebench installed
	Module string `yaml:"module"` // entry point run with -m

	// LogRoot is where the harness writes run_evaluation logs and reports.
	LogRoot string `yaml:"log_root"`

	// WorkingDirectory is the harness process cwd. LogRoot is resolved
	// against it when relative.
	WorkingDirectory string `yaml:"working_directory"`

	Split         string `yaml:"split"`
	Namespace     string `yaml:"namespace"`
	OpenFileLimit int    `yaml:"open_file_limit"`

	// InstanceTimeout is the per-instance test timeout handed to the harness.
	InstanceTimeout string `yaml:"instance_timeout"`

	// BuildAllowance is added to the outer process deadline to cover
	// image builds before any test starts.
	BuildAllowance string `yaml:"build_allowance"`

	// Environment variables passed through to the harness process.
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// ScratchConfig configures the staging area.
type ScratchConfig struct {
	// Root is the parent of per-run scratch directories (empty = system temp).
	Root string `yaml:"root"`
	// Keep leaves scratch directories in place after the run.
	Keep bool `yaml:"keep"`
}

// HistoryConfig configures the validation history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "swe-validator",
		Version: "0.1.0",

		Records: RecordsConfig{
			Dir:       "data_points",
			Extension: ".json",
		},

		Harness: HarnessConfig{
			Python:           "python3",
			Module:           "swebench.harness.run_evaluation",
			LogRoot:          filepath.Join("logs", "run_evaluation"),
			WorkingDirectory: ".",
			Split:            "test",
			Namespace:        "none",
			OpenFileLimit:    4096,
			InstanceTimeout:  "1800s",
			BuildAllowance:   "2h",
			AllowedEnvVars: []string{
				"PATH", "HOME", "USER", "LANG", "LC_ALL",
				"DOCKER_HOST", "DOCKER_CERT_PATH", "DOCKER_TLS_VERIFY",
				"VIRTUAL_ENV", "CONDA_PREFIX", "PYTHONPATH",
			},
		},

		History: HistoryConfig{
			Enabled: false,
			Path:    filepath.Join(".swe-validator", "history.db"),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("SWE_VALIDATOR_RECORDS_DIR"); dir != "" {
		c.Records.Dir = dir
	}
	if root := os.Getenv("SWE_VALIDATOR_LOG_ROOT"); root != "" {
		c.Harness.LogRoot = root
	}
	if py := os.Getenv("SWE_VALIDATOR_PYTHON"); py != "" {
		c.Harness.Python = py
	}
	if dir := os.Getenv("SWE_VALIDATOR_SCRATCH_DIR"); dir != "" {
		c.Scratch.Root = dir
	}
	if path := os.Getenv("SWE_VALIDATOR_HISTORY_DB"); path != "" {
		c.History.Path = path
		c.History.Enabled = true
	}
}

// GetInstanceTimeout returns the per-instance harness timeout as a duration.
func (c *Config) GetInstanceTimeout() time.Duration {
	d, err := time.ParseDuration(c.Harness.InstanceTimeout)
	if err != nil || d <= 0 {
		return 1800 * time.Second
	}
	return d
}

// GetBuildAllowance returns the harness build allowance as a duration.
func (c *Config) GetBuildAllowance() time.Duration {
	d, err := time.ParseDuration(c.Harness.BuildAllowance)
	if err != nil || d < 0 {
		return 2 * time.Hour
	}
	return d
}

// ResolvedLogRoot returns the harness log root, resolved against the
// harness working directory when relative.
func (c *Config) ResolvedLogRoot() string {
	if filepath.IsAbs(c.Harness.LogRoot) || c.Harness.WorkingDirectory == "" {
		return c.Harness.LogRoot
	}
	return filepath.Join(c.Harness.WorkingDirectory, c.Harness.LogRoot)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Records.Dir == "" {
		return fmt.Errorf("records directory not configured")
	}
	if c.Harness.Python == "" || c.Harness.Module == "" {
		return fmt.Errorf("harness python and module are required")
	}
	if c.Harness.LogRoot == "" {
		return fmt.Errorf("harness log root not configured")
	}

	if c.Harness.OpenFileLimit <= 0 {
		return fmt.Errorf("open_file_limit must be positive, got %d", c.Harness.OpenFileLimit)
	}
	timeout, err := time.ParseDuration(c.Harness.InstanceTimeout)
	if err != nil {
		return fmt.Errorf("invalid instance_timeout %q: %w", c.Harness.InstanceTimeout, err)
	}
	// The harness takes whole seconds.
	if timeout < time.Second {
		return fmt.Errorf("instance_timeout must be at least 1s, got %s", timeout)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history enabled but no path configured")
	}

	return nil
}
