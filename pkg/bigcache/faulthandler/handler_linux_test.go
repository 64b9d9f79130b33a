/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package faulthandler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/bigcache/packer"
)

func buildBundle(t *testing.T) (*loader.Bundle, string) {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.bin")
	srcData := make([]byte, constant.PageSize*2)
	for i := range srcData {
		srcData[i] = byte(i % 97)
	}
	require.NoError(t, os.WriteFile(srcPath, srcData, 0644))

	p := packer.New()
	_, err := p.AddPage(srcPath, 0, 1)
	require.NoError(t, err)
	_, err = p.AddPage(srcPath, constant.PageSize, 2)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "bundle.bin")
	_, err = p.Build(outPath)
	require.NoError(t, err)

	b, err := loader.Load(outPath)
	require.NoError(t, err)
	return b, srcPath
}

func TestRegionContains(t *testing.T) {
	r := &Region{Base: 0x1000, Size: 0x2000}
	assert.True(t, r.contains(0x1000))
	assert.True(t, r.contains(0x2fff))
	assert.False(t, r.contains(0x3000))
	assert.False(t, r.contains(0x0fff))
}

func TestResolvePageHit(t *testing.T) {
	b, srcPath := buildBundle(t)
	defer b.Unload()

	region := &Region{Base: 0x40000000, Size: uintptr(constant.PageSize * 2), OriginPath: srcPath, OriginOffsetBase: 0}
	zero := make([]byte, constant.PageSize)

	src, hit := resolvePage(b, region, region.Base, zero)
	require.True(t, hit)
	assert.Equal(t, byte(0), src[0])
	assert.Equal(t, byte(1), src[1])

	src, hit = resolvePage(b, region, region.Base+uintptr(constant.PageSize), zero)
	require.True(t, hit)
	assert.NotEqual(t, zero, src)
}

func TestResolvePageMissFallsBackToZeroPage(t *testing.T) {
	b, srcPath := buildBundle(t)
	defer b.Unload()

	region := &Region{Base: 0x40000000, Size: uintptr(constant.PageSize * 4), OriginPath: srcPath, OriginOffsetBase: 0}
	zero := make([]byte, constant.PageSize)

	src, hit := resolvePage(b, region, region.Base+uintptr(constant.PageSize*3), zero)
	assert.False(t, hit)
	assert.Equal(t, zero, src)
}

// TestHandleFaultCountsHitsAndZeroFillsMutuallyExclusive exercises the
// S6 scenario: a bundle backing only the first of three faulted pages
// must report one hit and two zero-fills, never a miss, since
// EnableZeroFill is on.
func TestHandleFaultCountsHitsAndZeroFillsMutuallyExclusive(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.bin")
	srcData := make([]byte, constant.PageSize)
	for i := range srcData {
		srcData[i] = 0x11
	}
	require.NoError(t, os.WriteFile(srcPath, srcData, 0644))

	p := packer.New()
	_, err := p.AddPage(srcPath, 0, 1)
	require.NoError(t, err)
	outPath := filepath.Join(dir, "bundle.bin")
	_, err = p.Build(outPath)
	require.NoError(t, err)

	b, err := loader.Load(outPath)
	require.NoError(t, err)
	defer b.Unload()

	region := &Region{Base: 0x40000000, Size: uintptr(constant.PageSize * 3), OriginPath: srcPath, OriginOffsetBase: 0}
	h := &Handler{
		bundle:   b,
		cfg:      Config{EnableZeroFill: true, EnableStats: true},
		uffd:     -1,
		zeroPage: make([]byte, constant.PageSize),
		regions:  []*Region{region},
		joined:   make(chan struct{}),
	}

	for i := 0; i < 3; i++ {
		h.handleFault(region.Base+uintptr(i*constant.PageSize), 0)
	}

	stats := h.Stats()
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(2), stats.ZeroFills)
	assert.Equal(t, uint64(0), stats.CacheMisses)
}

func TestStateTransitionsRejectOutOfOrderStart(t *testing.T) {
	h := &Handler{state: int32(StateDestroyed), joined: make(chan struct{})}
	assert.Error(t, h.Start())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(99).String())
}
