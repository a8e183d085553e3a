// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvRuns       = "MEASURE_RUNS"
	EnvWarmupRuns = "MEASURE_WARMUP_RUNS"
	EnvOutput     = "MEASURE_OUTPUT"
)

// ErrInvalid indicates a configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Load reads the configuration at path.
//
// Description:
//
//	Keys missing from the file keep their defaults. Environment overrides
//	are applied after the file, then the result is validated.
//
// Inputs:
//   - path: YAML file.
//
// Outputs:
//   - *Config: The loaded configuration.
//   - error: I/O, parse, override or validation failure.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing the default configuration first if the
// file does not exist.
//
// Outputs:
//   - *Config: The loaded configuration.
//   - bool: True if the file was created by this call.
//   - error: Any failure from creation or Load.
func LoadOrCreate(path string) (*Config, bool, error) {
	created := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, false, err
		}
		created = true
	}

	cfg, err := Load(path)
	return cfg, created, err
}

// WriteDefault writes the default configuration to path, creating parent
// directories.
func WriteDefault(path string) error {
	return Write(path, Default())
}

// Write serializes cfg to path as YAML.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode the config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv applies MEASURE_* overrides using lookup.
//
// Inputs:
//   - lookup: Environment lookup, typically os.LookupEnv.
//
// Outputs:
//   - error: ErrInvalid if a numeric override does not parse.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRuns); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, EnvRuns, v, err)
		}
		c.Runs = n
	}
	if v, ok := lookup(EnvWarmupRuns); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, EnvWarmupRuns, v, err)
		}
		c.WarmupRuns = n
	}
	if v, ok := lookup(EnvOutput); ok && v != "" {
		c.Output.Path = v
	}
	return nil
}
