// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTrustAnchorPath is used when trust_anchor.path is empty.
const DefaultTrustAnchorPath = "/etc/captoken/trust_anchor.pem"

// MaxLeeway bounds verification.leeway. Larger skews indicate a broken
// clock rather than drift.
const MaxLeeway = 10 * time.Minute

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the captoken configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// TrustAnchor locates the public key that roots every token.
	TrustAnchor TrustAnchorConfig `yaml:"trust_anchor"`

	// Registry configures the named key and chain database.
	Registry RegistryConfig `yaml:"registry"`

	// Verification tunes verification behaviour.
	Verification VerificationConfig `yaml:"verification"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	TrustAnchor  *TrustAnchorConfig  `yaml:"trust_anchor,omitempty"`
	Registry     *RegistryConfig     `yaml:"registry,omitempty"`
	Verification *VerificationConfig `yaml:"verification,omitempty"`
	Log          *LogConfig          `yaml:"log,omitempty"`
}

// TrustAnchorConfig locates the trust-anchor public key.
type TrustAnchorConfig struct {
	// Path is the key file (PEM, OpenSSH, text, or raw).
	// Default: /etc/captoken/trust_anchor.pem
	Path string `yaml:"path"`
}

// RegistryConfig configures the SQLite registry of named keys and
// service chains.
type RegistryConfig struct {
	// Path is the database file. Empty disables the registry.
	Path string `yaml:"path"`

	// PoolSize is the number of pooled connections. Default: 4
	PoolSize int `yaml:"pool_size"`
}

// VerificationConfig tunes verification.
type VerificationConfig struct {
	// Leeway widens token validity windows to absorb clock skew, as a
	// Go duration string. Default: 30s (development), 0s (production)
	Leeway string `yaml:"leeway"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, JSON
	// otherwise). Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration, used as the base before
// loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		TrustAnchor: TrustAnchorConfig{
			Path: DefaultTrustAnchorPath,
		},
		Registry: RegistryConfig{
			PoolSize: 4,
		},
		Verification: VerificationConfig{
			Leeway: "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "CAPTOKEN_CONFIG"

// Load loads configuration from the CAPTOKEN_CONFIG environment
// variable. There are no fallbacks: if CAPTOKEN_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("CAPTOKEN_CONFIG environment variable not set; " +
			"set it to the path of your captoken.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: no skew tolerance, machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Verification: &VerificationConfig{Leeway: "0s"},
				Log:          &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.TrustAnchor != nil && overrides.TrustAnchor.Path != "" {
		c.TrustAnchor.Path = overrides.TrustAnchor.Path
	}

	if overrides.Registry != nil {
		if overrides.Registry.Path != "" {
			c.Registry.Path = overrides.Registry.Path
		}
		if overrides.Registry.PoolSize != 0 {
			c.Registry.PoolSize = overrides.Registry.PoolSize
		}
	}

	if overrides.Verification != nil && overrides.Verification.Leeway != "" {
		c.Verification.Leeway = overrides.Verification.Leeway
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	if c.Registry.Path != "" {
		vars["CAPTOKEN_ROOT"] = filepath.Dir(expandVars(c.Registry.Path, vars))
	}

	c.TrustAnchor.Path = expandVars(c.TrustAnchor.Path, vars)
	c.Registry.Path = expandVars(c.Registry.Path, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

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

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// TrustAnchorPath returns the configured trust-anchor path, or the
// built-in default when none is configured.
func (c *Config) TrustAnchorPath() string {
	if c.TrustAnchor.Path != "" {
		return c.TrustAnchor.Path
	}
	return DefaultTrustAnchorPath
}

// Leeway returns verification.leeway as a duration.
func (c *Config) Leeway() (time.Duration, error) {
	if c.Verification.Leeway == "" {
		return 0, nil
	}
	leeway, err := time.ParseDuration(c.Verification.Leeway)
	if err != nil {
		return 0, fmt.Errorf("verification.leeway: %w", err)
	}
	return leeway, nil
}

// LogLevel returns log.level as a slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "text", "json"}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if !filepath.IsAbs(c.TrustAnchorPath()) {
		errs = append(errs, fmt.Errorf("trust_anchor.path must be absolute, got %q", c.TrustAnchorPath()))
	}

	if c.Registry.Path != "" && c.Registry.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("registry.pool_size must be at least 1"))
	}

	if leeway, err := c.Leeway(); err != nil {
		errs = append(errs, err)
	} else if leeway < 0 || leeway > MaxLeeway {
		errs = append(errs, fmt.Errorf("verification.leeway must be between 0 and %s", MaxLeeway))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
