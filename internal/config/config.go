// Package config loads p4fpga settings from defaults, an optional YAML file
// and P4FPGA_* environment variables. Command-line flags are applied on top
// by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"p4fpga/internal/sema"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "p4fpga.yaml"

// Config holds all configuration for one compilation.
type Config struct {
	// Lang is the source language version: p4-14 or p4-16.
	Lang string `yaml:"lang" env:"P4FPGA_LANG"`

	// OutputDir receives the generated files. Empty means check only; "-"
	// streams a txtar archive to stdout.
	OutputDir string `yaml:"output_dir" env:"P4FPGA_OUTPUT_DIR"`

	// DiagFormat is text or json.
	DiagFormat string `yaml:"diag_format" env:"P4FPGA_DIAG_FORMAT"`

	// Verbose enables pass tracing on stderr.
	Verbose bool `yaml:"verbose" env:"P4FPGA_VERBOSE"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Lang:       "p4-16",
		OutputDir:  "",
		DiagFormat: "text",
		Verbose:    false,
	}
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. The YAML file at path, or ./p4fpga.yaml when path is empty
// 3. Defaults
//
// An explicit path must exist; the default file is optional.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	file := path
	if file == "" {
		file = DefaultFile
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
	case path == "" && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("P4FPGA_LANG"); v != "" {
		cfg.Lang = v
	}
	if v := os.Getenv("P4FPGA_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("P4FPGA_DIAG_FORMAT"); v != "" {
		cfg.DiagFormat = v
	}
	if v := os.Getenv("P4FPGA_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1" || v == "yes"
	}
}

// Validate checks the language version and the diagnostic format.
func (c *Config) Validate() error {
	if _, err := c.Dialect(); err != nil {
		return err
	}
	switch c.DiagFormat {
	case "text", "json":
	default:
		return fmt.Errorf("diag_format must be text or json, got %q", c.DiagFormat)
	}
	return nil
}

// Dialect returns the language version as a name-resolution dialect.
func (c *Config) Dialect() (sema.Dialect, error) {
	return sema.ParseDialect(c.Lang)
}
