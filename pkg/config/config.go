// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package config defines drydock's configuration schema and helpers for
// loading and validating config files.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"drydock/pkg/model"
)

// Feature: CORE_CONFIG
// Spec: SPEC_FULL.md §4.10

// ErrConfigNotFound is returned when the config file does not exist at the given path.
var ErrConfigNotFound = errors.New("drydock config not found")

// Config is the top-level drydock configuration.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Database DatabaseConfig `yaml:"database"`
	Policy   PolicyConfig   `yaml:"policy"`
	Governor GovernorConfig `yaml:"governor"`
}

// ProjectConfig describes project-level settings.
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig describes how to reach and serialize against the target database.
type DatabaseConfig struct {
	ConnectionEnv string `yaml:"connection_env"`
	Scope         string `yaml:"scope"`
}

// TimeoutsConfig holds default lock/statement timeout budgets in milliseconds.
type TimeoutsConfig struct {
	LockMS int64 `yaml:"lock_ms"`
	StmtMS int64 `yaml:"stmt_ms"`
}

// PolicyConfig describes the default mode policy applied to submitted plans.
type PolicyConfig struct {
	MaxHazard       string         `yaml:"max_hazard"`
	DefaultTimeouts TimeoutsConfig `yaml:"default_timeouts"`
}

// GovernorConfig describes the governor's backpressure thresholds.
type GovernorConfig struct {
	MaxActiveConnections int     `yaml:"max_active_connections"`
	MaxErrorRate         float64 `yaml:"max_error_rate"`
	PauseCapSeconds      int     `yaml:"pause_cap_seconds"`
}

// DefaultConfigPath returns the default config path for the current working directory.
func DefaultConfigPath() string {
	return "drydock.yml"
}

// Exists reports whether a config file exists at the given path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load reads and validates the config from the given path.
// It returns ErrConfigNotFound if the file does not exist.
func Load(path string) (*Config, error) {
	exists, err := Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking config existence: %w", err)
	}
	if !exists {
		return nil, ErrConfigNotFound
	}

	// nolint:gosec // G304: reading config file from user-specified path is expected behavior
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Project.Name == "" {
		return errors.New("config: project.name must be non-empty")
	}
	if cfg.Database.ConnectionEnv == "" {
		return errors.New("config: database.connection_env must be non-empty")
	}
	if cfg.Database.Scope == "" {
		return errors.New("config: database.scope must be non-empty")
	}
	if cfg.Policy.MaxHazard != "" {
		if _, err := ParseHazard(cfg.Policy.MaxHazard); err != nil {
			return fmt.Errorf("config: policy.max_hazard: %w", err)
		}
	}
	if cfg.Governor.MaxErrorRate < 0 || cfg.Governor.MaxErrorRate > 1 {
		return errors.New("config: governor.max_error_rate must be between 0 and 1")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Governor.MaxActiveConnections == 0 {
		cfg.Governor.MaxActiveConnections = 80
	}
	if cfg.Governor.MaxErrorRate == 0 {
		cfg.Governor.MaxErrorRate = 0.05
	}
	if cfg.Governor.PauseCapSeconds == 0 {
		cfg.Governor.PauseCapSeconds = 30
	}
}

// ParseHazard parses a hazard class name like "H2" into a model.HazardClass.
func ParseHazard(s string) (model.HazardClass, error) {
	switch s {
	case "H0":
		return model.H0, nil
	case "H1":
		return model.H1, nil
	case "H2":
		return model.H2, nil
	case "H3":
		return model.H3, nil
	default:
		return 0, fmt.Errorf("unknown hazard class %q", s)
	}
}
