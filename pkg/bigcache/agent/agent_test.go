/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcache-project/bigcache/config"
	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/packer"
)

func resetState(t *testing.T) {
	t.Helper()
	require.NoError(t, Cleanup())
	t.Cleanup(func() { Cleanup() })
}

func buildTestBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "libfoo.so")
	require.NoError(t, os.WriteFile(srcPath, make([]byte, constant.PageSize*2), 0644))

	p := packer.New()
	_, err := p.AddPage(srcPath, 0, 1)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "bundle.bin")
	_, err = p.Build(outPath)
	require.NoError(t, err)
	return outPath
}

func TestInitDisabledConfigIsNoop(t *testing.T) {
	resetState(t)

	err := Init(WithConfig(&config.Config{Enabled: false}))
	require.NoError(t, err)
	assert.False(t, IsEnabled())
	assert.Nil(t, Bundle())
	assert.Nil(t, Handler())

	// a second Init call, even with a different config, is a no-op
	// while already started.
	err = Init(WithConfig(&config.Config{Enabled: true, BundlePath: "/nonexistent"}))
	require.NoError(t, err)
	assert.False(t, IsEnabled())
}

func TestInitFailsOnMissingBundle(t *testing.T) {
	resetState(t)

	err := Init(WithConfig(&config.Config{Enabled: true, BundlePath: "/nonexistent/bundle.bin", LogLevel: "error"}))
	require.Error(t, err)
	assert.False(t, IsEnabled())
	assert.Nil(t, Bundle())
}

func TestCleanupWithoutInitIsSafe(t *testing.T) {
	require.NoError(t, Cleanup())
	assert.False(t, IsEnabled())
}

func TestGetStatsBeforeInitIsZeroValue(t *testing.T) {
	resetState(t)
	assert.Equal(t, Stats{}, GetStats())
}

func TestInitWithValidBundleEnablesOrUnloadsOnHandlerFailure(t *testing.T) {
	resetState(t)

	bundlePath := buildTestBundle(t)
	cfg := &config.Config{Enabled: true, BundlePath: bundlePath, LogLevel: "error", EnableStats: true}

	err := Init(WithConfig(cfg))
	// on a platform (or sandbox) without usable userfaultfd, Init
	// surfaces the handler error and leaves the agent disabled; on a
	// fully capable Linux host it succeeds and starts serving faults.
	// On failure the bundle it loaded must have been unloaded again so
	// this case doesn't leak the mapping.
	if err != nil {
		assert.False(t, IsEnabled())
		assert.Nil(t, Bundle())
		return
	}
	assert.True(t, IsEnabled())
	require.NotNil(t, Bundle())
	require.NotNil(t, Handler())
	require.NoError(t, Cleanup())
	assert.False(t, IsEnabled())
}
