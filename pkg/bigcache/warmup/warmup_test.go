/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package warmup

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
	require.NoError(t, os.WriteFile(srcPath, make([]byte, constant.PageSize*2), 0644))

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

func TestWarmBlob(t *testing.T) {
	b, _ := buildBundle(t)
	defer b.Unload()
	assert.NoError(t, WarmBlob(b))
}

func TestWarmSources(t *testing.T) {
	_, srcPath := buildBundle(t)
	err := WarmSources([]SourceAccess{{Path: srcPath, Offset: 0}, {Path: "/nonexistent/ghost", Offset: 0}})
	assert.NoError(t, err)
}

func TestWarmSourcesMmap(t *testing.T) {
	_, srcPath := buildBundle(t)
	err := WarmSourcesMmap([]SourceAccess{{Path: srcPath, Offset: 0}, {Path: srcPath, Offset: constant.PageSize}})
	assert.NoError(t, err)
}

func TestWarmAll(t *testing.T) {
	b, srcPath := buildBundle(t)
	defer b.Unload()
	err := WarmAll(b, []SourceAccess{{Path: srcPath, Offset: 0}})
	assert.NoError(t, err)
}
