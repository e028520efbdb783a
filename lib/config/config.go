// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration file for Load.
const EnvironmentVariable = "LOOPBACK_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for installed deployments.
	Production Environment = "production"
)

// Isolation backends.
const (
	// BackendSystem drives the Windows network isolation API.
	BackendSystem = "system"
	// BackendMemory simulates the exemption list in process.
	BackendMemory = "memory"
)

// Config is the configuration of the loopback server and client.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths PathsConfig `yaml:"paths"`

	Isolation IsolationConfig `yaml:"isolation"`

	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`

	// source is the file the config was loaded from, empty for
	// Default.
	source string
}

// ConfigOverrides contains the fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Isolation *IsolationConfig `yaml:"isolation,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for runtime files.
	Root string `yaml:"root"`

	// RunDir holds one activation socket per served class.
	RunDir string `yaml:"run_dir"`

	// StateDir holds the elevation handoff record.
	StateDir string `yaml:"state_dir"`

	// ServerBinary is the server executable the client starts when no
	// server is running. A bare name is looked up next to the client
	// executable, then in PATH.
	ServerBinary string `yaml:"server_binary"`
}

// IsolationConfig selects the exemption list backend.
type IsolationConfig struct {
	// Backend is "system" or "memory".
	Backend string `yaml:"backend"`

	// Seed is a JSONC file of containers and exemptions for the memory
	// backend. Empty starts with nothing.
	Seed string `yaml:"seed"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	root := filepath.Join(cacheDir, "loopback")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:         root,
			RunDir:       filepath.Join(root, "run"),
			StateDir:     filepath.Join(root, "state"),
			ServerBinary: "loopback-server",
		},
		Isolation: IsolationConfig{
			Backend: BackendSystem,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by LOOPBACK_CONFIG. It fails when the
// variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your loopback.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	if absolute, err := filepath.Abs(path); err == nil {
		cfg.source = absolute
	} else {
		cfg.source = path
	}
	return cfg, nil
}

// Resolve loads the file given by flagPath, else the one named by
// LOOPBACK_CONFIG, else returns Default.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// Source returns the absolute path the config was loaded from, or ""
// for defaults.
func (c *Config) Source() string { return c.source }

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Logging: &LoggingConfig{Level: "warn"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.RunDir != "" {
			c.Paths.RunDir = overrides.Paths.RunDir
		}
		if overrides.Paths.StateDir != "" {
			c.Paths.StateDir = overrides.Paths.StateDir
		}
		if overrides.Paths.ServerBinary != "" {
			c.Paths.ServerBinary = overrides.Paths.ServerBinary
		}
	}

	if overrides.Isolation != nil {
		if overrides.Isolation.Backend != "" {
			c.Isolation.Backend = overrides.Isolation.Backend
		}
		if overrides.Isolation.Seed != "" {
			c.Isolation.Seed = overrides.Isolation.Seed
		}
	}

	if overrides.Logging != nil && overrides.Logging.Level != "" {
		c.Logging.Level = overrides.Logging.Level
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	home, _ := os.UserHomeDir()
	vars := map[string]string{
		"LOOPBACK_ROOT": c.Paths.Root,
		"HOME":          home,
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["LOOPBACK_ROOT"] = c.Paths.Root

	c.Paths.RunDir = expandVars(c.Paths.RunDir, vars)
	c.Paths.StateDir = expandVars(c.Paths.StateDir, vars)
	c.Paths.ServerBinary = expandVars(c.Paths.ServerBinary, vars)
	c.Isolation.Seed = expandVars(c.Isolation.Seed, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. vars take precedence
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.RunDir == "" {
		errs = append(errs, errors.New("paths.run_dir is required"))
	}
	if c.Paths.StateDir == "" {
		errs = append(errs, errors.New("paths.state_dir is required"))
	}

	backends := []string{BackendSystem, BackendMemory}
	if !slices.Contains(backends, c.Isolation.Backend) {
		errs = append(errs, fmt.Errorf("isolation.backend must be one of: %v", backends))
	}
	if c.Isolation.Seed != "" && c.Isolation.Backend != BackendMemory {
		errs = append(errs, errors.New("isolation.seed is only used by the memory backend"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// HandoffPath is the elevation handoff record.
func (c *Config) HandoffPath() string {
	return filepath.Join(c.Paths.StateDir, "elevation.json")
}

// EnsurePaths creates the run and state directories.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.RunDir, c.Paths.StateDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// ServerBinaryPath resolves Paths.ServerBinary: an absolute path is
// used as is, a bare name is looked for next to the running executable
// and then in PATH.
func (c *Config) ServerBinaryPath() (string, error) {
	name := c.Paths.ServerBinary
	if name == "" {
		return "", errors.New("paths.server_binary is not set")
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("server binary: %w", err)
		}
		return name, nil
	}

	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found next to this executable or in PATH", name)
	}
	return path, nil
}
