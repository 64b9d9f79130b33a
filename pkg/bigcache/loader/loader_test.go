/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/packer"
)

func buildTestBundle(t *testing.T) (string, []byte) {
	t.Helper()
	dir := t.TempDir()

	srcPath := filepath.Join(dir, "source.bin")
	srcData := make([]byte, constant.PageSize*3)
	for i := range srcData {
		srcData[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(srcPath, srcData, 0644))

	p := packer.New()
	_, err := p.AddPage(srcPath, 0, 1)
	require.NoError(t, err)
	_, err = p.AddPage(srcPath, constant.PageSize, 2)
	require.NoError(t, err)
	_, err = p.AddPage(srcPath, 2*constant.PageSize, 3)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "bundle.bin")
	_, err = p.Build(outPath)
	require.NoError(t, err)

	return outPath, srcData
}

func TestLoadAndLookup(t *testing.T) {
	bundlePath, srcData := buildTestBundle(t)

	b, err := Load(bundlePath)
	require.NoError(t, err)
	defer b.Unload()

	srcPath := filepath.Join(filepath.Dir(bundlePath), "source.bin")

	page, ok := b.Lookup(srcPath, 0)
	require.True(t, ok)
	assert.Equal(t, srcData[:constant.PageSize], page)

	page, ok = b.Lookup(srcPath, constant.PageSize+10) // unaligned offset still resolves
	require.True(t, ok)
	assert.Equal(t, srcData[constant.PageSize:2*constant.PageSize], page)

	_, ok = b.Lookup(srcPath, 10*constant.PageSize)
	assert.False(t, ok)

	_, ok = b.Lookup("/does/not/exist", 0)
	assert.False(t, ok)

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestLookupOffset(t *testing.T) {
	bundlePath, _ := buildTestBundle(t)
	b, err := Load(bundlePath)
	require.NoError(t, err)
	defer b.Unload()

	srcPath := filepath.Join(filepath.Dir(bundlePath), "source.bin")
	off, ok := b.LookupOffset(srcPath, 0)
	require.True(t, ok)
	assert.Equal(t, b.Header().DataOffset, off)
}

func TestVerify(t *testing.T) {
	bundlePath, _ := buildTestBundle(t)
	b, err := Load(bundlePath)
	require.NoError(t, err)
	defer b.Unload()

	assert.NoError(t, b.Verify())
}

func TestVerifyDetectsCorruption(t *testing.T) {
	bundlePath, _ := buildTestBundle(t)

	raw, err := os.ReadFile(bundlePath)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF // flip a byte in the page data region
	require.NoError(t, os.WriteFile(bundlePath, raw, 0644))

	b, err := Load(bundlePath)
	require.NoError(t, err)
	defer b.Unload()

	assert.Error(t, b.Verify())
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "not-a-bundle.bin")
	require.NoError(t, os.WriteFile(p, make([]byte, 128), 0644))

	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/bundle.bin")
	assert.Error(t, err)
}
