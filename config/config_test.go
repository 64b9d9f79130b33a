/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcache-project/bigcache/internal/constant"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{constant.EnvBundlePath, constant.EnvEnabled, constant.EnvVerbose, constant.EnvConfigPath, constant.EnvMetricsAddr} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, constant.DefaultBundlePath, c.BundlePath)
	assert.True(t, c.Enabled)
	assert.Equal(t, constant.DefaultLogLevel, c.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(constant.EnvBundlePath, "/tmp/custom.bin")
	t.Setenv(constant.EnvEnabled, "0")
	t.Setenv(constant.EnvVerbose, "5")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.bin", c.BundlePath)
	assert.False(t, c.Enabled)
	assert.Equal(t, "trace", c.LogLevel)
}

func TestLoadRejectsNonIntegerVerbose(t *testing.T) {
	clearEnv(t)
	t.Setenv(constant.EnvVerbose, "loud")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMergesTOMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bigcache.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
bundle_path = "/opt/bigcache/bundle.bin"
enable_zero_fill = false
`), 0644))
	t.Setenv(constant.EnvConfigPath, cfgPath)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/opt/bigcache/bundle.bin", c.BundlePath)
	assert.False(t, c.EnableZeroFill)
}

func TestLoadIgnoresMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(constant.EnvConfigPath, "/nonexistent/bigcache.toml")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, constant.DefaultBundlePath, c.BundlePath)
}
