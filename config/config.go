/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package config loads the agent's runtime configuration: environment
// variables first, then an optional TOML override file, following the
// teacher's config.LoadShotterConfigFile/FillupWithDefaults shape.
package config

import (
	"os"
	"strconv"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/internal/logging"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

// Config is the fully resolved agent configuration.
type Config struct {
	BundlePath  string `toml:"bundle_path"`
	Enabled     bool   `toml:"-"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	// EnableZeroFill controls whether a cache miss is resolved with a
	// synthesized zero page (true) or left for the application's own
	// fault to recur against the real filesystem (false).
	EnableZeroFill bool `toml:"enable_zero_fill"`
	// EnableStats toggles per-fault counter bookkeeping.
	EnableStats bool `toml:"enable_stats"`
}

// fileConfig is the subset of Config loadable from TOML; Enabled is
// environment-only by design (a disabled agent shouldn't need the file
// to exist at all).
type fileConfig struct {
	BundlePath     string `toml:"bundle_path"`
	LogLevel       string `toml:"log_level"`
	MetricsAddr    string `toml:"metrics_addr"`
	EnableZeroFill *bool  `toml:"enable_zero_fill"`
	EnableStats    *bool  `toml:"enable_stats"`
}

// Load resolves the agent configuration from BIGCACHE_PATH,
// BIGCACHE_ENABLED, BIGCACHE_VERBOSE, BIGCACHE_METRICS_ADDR, and
// (if BIGCACHE_CONFIG points at a readable file) a TOML override,
// applied in that order so the file can override env defaults but
// env is read first to establish them.
func Load() (*Config, error) {
	c := &Config{
		BundlePath:     constant.DefaultBundlePath,
		Enabled:        true,
		LogLevel:       constant.DefaultLogLevel,
		EnableZeroFill: true,
		EnableStats:    true,
	}

	if v := os.Getenv(constant.EnvBundlePath); v != "" {
		c.BundlePath = v
	}
	if v := os.Getenv(constant.EnvEnabled); v == "0" {
		c.Enabled = false
	}
	if v := os.Getenv(constant.EnvVerbose); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(errdefs.ErrInvalidInput, "config: %s=%q is not an integer", constant.EnvVerbose, v)
		}
		c.LogLevel = logging.VerboseToLevel(n)
	}
	if v := os.Getenv(constant.EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}

	if path := os.Getenv(constant.EnvConfigPath); path != "" {
		if err := c.mergeFile(path); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Config) mergeFile(path string) error {
	tree, err := toml.LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(errdefs.ErrIO, "config: load %s: %v", path, err)
	}

	var fc fileConfig
	if err := tree.Unmarshal(&fc); err != nil {
		return errors.Wrapf(errdefs.ErrInvalidInput, "config: unmarshal %s: %v", path, err)
	}

	if fc.BundlePath != "" {
		c.BundlePath = fc.BundlePath
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.MetricsAddr != "" {
		c.MetricsAddr = fc.MetricsAddr
	}
	if fc.EnableZeroFill != nil {
		c.EnableZeroFill = *fc.EnableZeroFill
	}
	if fc.EnableStats != nil {
		c.EnableStats = *fc.EnableStats
	}
	return nil
}
